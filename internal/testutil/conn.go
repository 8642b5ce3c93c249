package testutil

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// RecordingConn is a net.Conn that keeps every Write as a separate record.
// Reads are served from Input. A non-nil WriteErr fails every Write after
// the first FailAfter successful ones.
type RecordingConn struct {
	Input     io.Reader
	WriteErr  error
	FailAfter int
	FlushErr  error

	mu      sync.Mutex
	writes  [][]byte
	flushes int
	closed  bool
}

func (c *RecordingConn) Read(p []byte) (int, error) {
	if c.Input == nil {
		return 0, io.EOF
	}
	return c.Input.Read(p)
}

func (c *RecordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.WriteErr != nil && len(c.writes) >= c.FailAfter {
		return 0, c.WriteErr
	}
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

// Flush counts flushes and returns FlushErr.
func (c *RecordingConn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return c.FlushErr
}

func (c *RecordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Writes returns a copy of each recorded Write.
func (c *RecordingConn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// String returns everything written so far.
func (c *RecordingConn) String() string {
	return strings.Join(c.Writes(), "")
}

// Flushes returns the number of Flush calls.
func (c *RecordingConn) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Closed reports whether Close was called.
func (c *RecordingConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RecordingConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *RecordingConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80}
}

func (c *RecordingConn) SetDeadline(time.Time) error      { return nil }
func (c *RecordingConn) SetReadDeadline(time.Time) error  { return nil }
func (c *RecordingConn) SetWriteDeadline(time.Time) error { return nil }

// ChunkReader returns its chunks one Read at a time, then io.EOF.
type ChunkReader struct {
	Chunks []string
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	if len(r.Chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.Chunks[0])
	if n == len(r.Chunks[0]) {
		r.Chunks = r.Chunks[1:]
	} else {
		r.Chunks[0] = r.Chunks[0][n:]
	}
	return n, nil
}
