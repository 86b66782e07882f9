// Package sched runs pipelines, background jobs and the scatter/gather
// fan-out primitive.
package sched

import (
	"bytes"
	"io"
	"sync"
)

// DefaultStreamLimit is the byte bound of an inter-stage pipe.
const DefaultStreamLimit = 64 * 1024

// Stream is a bounded in-memory pipe. Writes block once the buffer holds
// the limit, giving pipelines backpressure instead of unbounded growth.
type Stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	limit  int
	closed bool
	rerr   error // delivered to the writer once the reader is gone
}

// NewStream returns a stream bounded to limit bytes (DefaultStreamLimit
// when limit <= 0).
func NewStream(limit int) *Stream {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	s := &Stream{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write appends to the buffer, blocking while it is full.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for s.buf.Len() >= s.limit && s.rerr == nil && !s.closed {
			s.cond.Wait()
		}
		if s.rerr != nil {
			return written, s.rerr
		}
		if s.closed {
			return written, io.ErrClosedPipe
		}
		room := s.limit - s.buf.Len()
		n := len(p)
		if n > room {
			n = room
		}
		s.buf.Write(p[:n])
		p = p[n:]
		written += n
		s.cond.Broadcast()
	}
	return written, nil
}

// Read drains the buffer, blocking while it is empty and the writer is
// still open.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.buf.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		s.cond.Wait()
	}
	n, _ := s.buf.Read(p)
	s.cond.Broadcast()
	return n, nil
}

// Close marks the write side done; pending reads drain the buffer and
// then see EOF.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

// CloseRead tears down the read side: subsequent writes fail with err,
// unblocking a stalled producer when its consumer exits early.
func (s *Stream) CloseRead(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rerr = err
	s.buf.Reset()
	s.cond.Broadcast()
}

// Capture is a bounded stdout/stderr sink. It keeps the first Limit
// bytes and counts what it had to drop, so huge outputs cannot exhaust
// memory while the result still reports the loss.
type Capture struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int64
}

// NewCapture returns a capture bounded to limit bytes (DefaultStreamLimit
// when limit <= 0).
func NewCapture(limit int) *Capture {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	return &Capture{limit: limit}
}

// Write never fails; overflow is counted, not stored.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.limit - c.buf.Len()
	if room > 0 {
		n := len(p)
		if n > room {
			n = room
		}
		c.buf.Write(p[:n])
		c.dropped += int64(len(p) - n)
	} else {
		c.dropped += int64(len(p))
	}
	return len(p), nil
}

// String returns the captured bytes.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Dropped reports how many bytes overflowed the bound.
func (c *Capture) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
