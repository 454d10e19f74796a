package sim

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Discrete simulation step size
const stepSize = 25 * time.Millisecond

// Simulator serves a Device over one end of an in-memory pipe, framing
// replies with "\r\n" the way the controller's serial port does.
type Simulator struct {
	dev    *Device
	conn   net.Conn
	out    chan []string
	logger *zap.Logger
}

// New returns a simulator for dev and the host side of its connection.
func New(dev *Device, idle time.Duration, logger *zap.Logger) (*Simulator, *Port) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a, b := net.Pipe()
	s := &Simulator{
		dev:    dev,
		conn:   a,
		out:    make(chan []string, 64),
		logger: logger,
	}
	return s, &Port{conn: b, idle: idle}
}

func (s *Simulator) Device() *Device {
	return s.dev
}

func (s *Simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		t := time.NewTicker(stepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.dev.Step(stepSize)
		}
	})
	g.Go(func() error {
		return s.reader(ctx)
	})
	g.Go(func() error {
		return s.writer(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Simulator) reader(ctx context.Context) error {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(scanCommands)
	for scanner.Scan() {
		input := scanner.Text()
		s.logger.Debug("host->sim", zap.String("line", input))
		if lines := s.dev.Handle(input); len(lines) > 0 {
			select {
			case s.out <- lines:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading port: %w", err)
	}
	return ctx.Err()
}

func (s *Simulator) writer(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case lines := <-s.out:
			var buf bytes.Buffer
			for _, line := range lines {
				buf.WriteString(line)
				buf.WriteString("\r\n")
			}
			s.logger.Debug("sim->host", zap.Strings("lines", lines))
			if _, err := s.conn.Write(buf.Bytes()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("writing port: %w", err)
			}
		}
	}
}

// scanCommands splits host input on carriage returns or newlines, keeping
// empty lines: a bare terminator is meaningful to the controller.
func scanCommands(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Port is the host end of a simulator connection. Reads return zero bytes
// once the line has been idle for the configured gap, which is what
// link.Link expects of a serial port.
type Port struct {
	conn net.Conn
	idle time.Duration
}

func (p *Port) Read(b []byte) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.idle)); err != nil {
		return 0, err
	}
	n, err := p.conn.Read(b)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	if err == io.EOF {
		return n, io.EOF
	}
	return n, err
}

func (p *Port) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

// Flush discards whatever the simulator has already sent.
func (p *Port) Flush() error {
	buf := make([]byte, 256)
	for {
		n, err := p.Read(buf)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (p *Port) Close() error {
	return p.conn.Close()
}
