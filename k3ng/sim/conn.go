package sim

import (
	"errors"
	"sync"
)

// Conn connects a host directly to a Device without a serial link. It has
// the same line semantics as link.Link: replies accumulate until read, and
// ReadLines drops the final empty terminator line.
type Conn struct {
	mu      sync.Mutex
	dev     *Device
	pending []string
	closed  bool

	// Sent records every line written, terminator excluded.
	Sent []string
}

func NewConn(dev *Device) *Conn {
	return &Conn{dev: dev}
}

var errClosed = errors.New("sim: connection closed")

func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.Sent = append(c.Sent, text)
	c.pending = append(c.pending, c.dev.Handle(text)...)
	return nil
}

func (c *Conn) ReadLines() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	lines := c.pending
	c.pending = nil
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return lines, nil
}

func (c *Conn) DiscardPending() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.Sent = append(c.Sent, "")
	c.dev.Handle("")
	c.pending = nil
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Reset forgets the recorded lines.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = nil
}
