package dialer

import (
	"context"
	"net"

	"golang.org/x/sync/singleflight"
)

// Resolver looks up host addresses, collapsing concurrent lookups of the
// same name into one query.
type Resolver struct {
	r  *net.Resolver
	sf singleflight.Group
}

// NewResolver wraps r, or net.DefaultResolver if r is nil.
func NewResolver(r *net.Resolver) *Resolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Resolver{r: r}
}

// LookupIPAddr returns host's addresses. The shared lookup is not cancelled
// by ctx, since other callers may be waiting on it, but this caller stops
// waiting when ctx is done.
func (r *Resolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	ch := r.sf.DoChan(host, func() (any, error) {
		lctx := context.WithoutCancel(ctx)
		if dl, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			lctx, cancel = context.WithDeadline(lctx, dl)
			defer cancel()
		}
		return r.r.LookupIPAddr(lctx, host)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]net.IPAddr), nil
	}
}
