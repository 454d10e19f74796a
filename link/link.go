// Package link owns the serial channel to a rotator controller and provides
// line-oriented reads and writes framed by idle gaps on the wire.
package link

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Terminator ends every line sent to the device.
const Terminator = "\r"

// Baud is the only rate the firmware's control port runs at.
const Baud = 9600

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrLink             = errors.New("link error")
)

// Port is the byte channel under a Link. Read must return zero bytes (with
// a nil error or io.EOF) once the channel has been idle for the inter-byte
// timeout. Flush discards unread input.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

type Config struct {
	Path string
	Baud int
	// ReadTimeout bounds the wait for the first byte of a reply.
	ReadTimeout time.Duration
	// InterByteTimeout is the idle gap that ends a reply.
	InterByteTimeout time.Duration
	// EchoDrain is how long WriteLine waits for any local echo to drain
	// before the next command may be issued.
	EchoDrain time.Duration
}

func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		Baud:             Baud,
		ReadTimeout:      2 * time.Second,
		InterByteTimeout: 500 * time.Millisecond,
		EchoDrain:        50 * time.Millisecond,
	}
}

// Link is an exclusively owned serial channel. It is not safe for
// concurrent use; the protocol client serializes access.
type Link struct {
	port Port
	cfg  Config

	closeOnce sync.Once
	closed    bool

	now   func() time.Time
	sleep func(time.Duration)
}

// Open checks the device path and opens it at 9600 baud.
func Open(cfg Config) (*Link, error) {
	if cfg.Baud == 0 {
		cfg.Baud = Baud
	}
	if cfg.Baud != Baud {
		return nil, fmt.Errorf("%w: unsupported baud rate %d", ErrLink, cfg.Baud)
	}
	if err := CheckAccess(cfg.Path); err != nil {
		return nil, err
	}
	timeout := cfg.InterByteTimeout
	if timeout <= 0 {
		timeout = cfg.ReadTimeout
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Path,
		Baud:        cfg.Baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %q: %v", ErrLink, cfg.Path, err)
	}
	return New(p, cfg), nil
}

// New wraps an already open port.
func New(port Port, cfg Config) *Link {
	return &Link{
		port:  port,
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

func (l *Link) Config() Config {
	return l.cfg
}

// WriteLine sends text followed by the terminator and waits for the echo
// drain period.
func (l *Link) WriteLine(text string) error {
	if l.closed {
		return fmt.Errorf("%w: write on closed link", ErrLink)
	}
	data := []byte(text + Terminator)
	n, err := l.port.Write(data)
	if err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrLink, text, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write of %q (%d of %d bytes)", ErrLink, text, n, len(data))
	}
	if l.cfg.EchoDrain > 0 {
		l.sleep(l.cfg.EchoDrain)
	}
	return nil
}

// ReadLines accumulates one reply. It waits up to ReadTimeout for the
// first byte, then stops at the first idle read. Lines have trailing
// whitespace trimmed and the final empty terminator line is dropped.
func (l *Link) ReadLines() ([]string, error) {
	if l.closed {
		return nil, fmt.Errorf("%w: read on closed link", ErrLink)
	}
	var acc bytes.Buffer
	buf := make([]byte, 256)
	start := l.now()
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: reading: %v", ErrLink, err)
		}
		if n > 0 {
			continue
		}
		if acc.Len() > 0 || l.now().Sub(start) >= l.cfg.ReadTimeout {
			break
		}
	}
	return splitLines(acc.Bytes()), nil
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), " \t\r\n"))
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// DiscardPending resynchronizes with a device in an unknown state: it sends
// a bare terminator and throws away everything the device has said.
func (l *Link) DiscardPending() error {
	if l.closed {
		return fmt.Errorf("%w: discard on closed link", ErrLink)
	}
	if _, err := l.port.Write([]byte(Terminator)); err != nil {
		return fmt.Errorf("%w: writing terminator: %v", ErrLink, err)
	}
	if l.cfg.EchoDrain > 0 {
		l.sleep(l.cfg.EchoDrain)
	}
	if err := l.port.Flush(); err != nil {
		return fmt.Errorf("%w: flushing: %v", ErrLink, err)
	}
	// Anything that arrived after the flush is stale too. A device that
	// never goes idle is drained for at most ReadTimeout.
	buf := make([]byte, 256)
	start := l.now()
	for {
		n, err := l.port.Read(buf)
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: draining: %v", ErrLink, err)
		}
		if n == 0 {
			return nil
		}
		if l.cfg.ReadTimeout > 0 && l.now().Sub(start) >= l.cfg.ReadTimeout {
			return nil
		}
	}
}

func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed = true
		if cerr := l.port.Close(); cerr != nil {
			err = fmt.Errorf("%w: closing: %v", ErrLink, cerr)
		}
	})
	return err
}
