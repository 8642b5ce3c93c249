package proxy

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional copies between left and right until both directions
// reach EOF, one side fails, or ctx is done. Each finished direction
// half-closes its destination when the connection supports it. Both
// connections are closed on return.
func CopyBidirectional(ctx context.Context, left, right net.Conn, ioTimeout time.Duration) error {
	if ioTimeout > 0 {
		dl := time.Now().Add(ioTimeout)
		_ = left.SetDeadline(dl)
		_ = right.SetDeadline(dl)
	}

	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	copied := make(chan struct{})
	var pending atomic.Int32
	pending.Store(2)

	pipe := func(dst, src net.Conn) func() error {
		return func() error {
			err := copyBuffered(dst, src)
			if cw, ok := dst.(interface{ CloseWrite() error }); ok && err == nil {
				_ = cw.CloseWrite()
			} else {
				closeBoth()
			}
			if pending.Add(-1) == 0 {
				close(copied)
			}
			return err
		}
	}

	g.Go(pipe(left, right))
	g.Go(pipe(right, left))

	// If the context is canceled, close both sides to unblock the copies.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			closeBoth()
		case <-copied:
		}
		return nil
	})

	return g.Wait()
}

func copyBuffered(dst io.Writer, src io.Reader) error {
	bp := copyBuffers.Get()
	defer copyBuffers.Put(bp)
	_, err := io.CopyBuffer(dst, src, *bp)
	return err
}
