// Package k3ng is a client for antenna rotator controllers running the
// K3NG rotator firmware with satellite tracking support.
//
// The firmware speaks a half-duplex, line-oriented text protocol over a
// 9600 baud serial link. Replies carry no length or end marker, so each one
// is framed by the idle gap that follows it. Many writes are not confirmed
// by the firmware; operations that matter (clock, TLE upload, calibration)
// are verified independently and report a typed *Error on failure.
package k3ng

import (
	"strings"
	"sync"
	"time"

	"github.com/w1xm/k3ng_interface/link"
	"go.uber.org/zap"
)

// Conn is the line channel a Rotator drives. *link.Link implements it.
type Conn interface {
	WriteLine(text string) error
	ReadLines() ([]string, error)
	DiscardPending() error
	Close() error
}

// Timing holds the fixed waits the firmware needs. The protocol has no busy
// indicator, so these are the only pacing in the client.
type Timing struct {
	// PostPrime follows the priming command at session start.
	PostPrime time.Duration
	// PostSave covers the controller restart triggered by an EEPROM save.
	PostSave time.Duration
	// PostCalibration follows a calibration command while the rotator moves
	// to its end stop.
	PostCalibration time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		PostPrime:       100 * time.Millisecond,
		PostSave:        time.Second,
		PostCalibration: 2 * time.Second,
	}
}

// MaxClockSkew is the largest difference accepted between the time written
// to the controller and the time it reports back.
const MaxClockSkew = 10 * time.Second

// Reply is the content of one device answer, terminator excluded.
type Reply []string

// Contains reports whether any line of the reply contains s.
func (r Reply) Contains(s string) bool {
	for _, line := range r {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func (r Reply) String() string {
	return strings.Join(r, "\n")
}

// Rotator is a session with one controller. It owns its Conn exclusively
// and serializes every operation, so it is safe for concurrent use.
type Rotator struct {
	mu     sync.Mutex
	conn   Conn
	timing Timing
	logger *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// Open opens the serial device described by cfg and starts a session.
func Open(cfg link.Config, timing Timing, logger *zap.Logger) (*Rotator, error) {
	l, err := link.Open(cfg)
	if err != nil {
		return nil, linkError("open", err)
	}
	r, err := New(l, timing, logger)
	if err != nil {
		l.Close()
		return nil, err
	}
	return r, nil
}

// New starts a session on conn. The Rotator takes ownership of conn and
// closes it in Close.
func New(conn Conn, timing Timing, logger *zap.Logger) (*Rotator, error) {
	r := newRotator(conn, timing, logger)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.prime("session start"); err != nil {
		return nil, err
	}
	return r, nil
}

func newRotator(conn Conn, timing Timing, logger *zap.Logger) *Rotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		conn:   conn,
		timing: timing,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// prime resynchronizes the link and issues one basic command. Extended
// commands fail when they are the first thing the controller sees after
// opening the port or restarting.
func (r *Rotator) prime(op string) error {
	r.logger.Info("resynchronizing rotator link", zap.String("op", op))
	if err := r.conn.DiscardPending(); err != nil {
		return linkError(op, err)
	}
	if _, err := r.query(op, cmdPrime); err != nil {
		return err
	}
	r.wait(r.timing.PostPrime)
	return nil
}

func (r *Rotator) wait(d time.Duration) {
	if d > 0 {
		r.sleep(d)
	}
}

func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.conn.Close(); err != nil {
		return linkError("close", err)
	}
	return nil
}

// Query sends a basic command and returns the reply lines unvalidated.
func (r *Rotator) Query(cmd string) (Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query("query", cmd)
}

func (r *Rotator) query(op, cmd string) (Reply, error) {
	if err := r.write(op, cmd); err != nil {
		return nil, err
	}
	return r.read(op)
}

func (r *Rotator) write(op, line string) error {
	r.logger.Debug("tx", zap.String("op", op), zap.String("line", line))
	if err := r.conn.WriteLine(line); err != nil {
		return linkError(op, err)
	}
	return nil
}

func (r *Rotator) read(op string) (Reply, error) {
	lines, err := r.conn.ReadLines()
	if err != nil {
		return nil, linkError(op, err)
	}
	r.logger.Debug("rx", zap.String("op", op), zap.Strings("lines", lines))
	return Reply(lines), nil
}

// QueryExtended sends `\?<code><args>` and returns the payload of an
// acknowledged reply.
func (r *Rotator) QueryExtended(code, args string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extended("query extended", code, args)
}

func validateCode(op, code string) error {
	if len(code) < 2 {
		return newError(InvalidCommand, op, "extended command code must be at least 2 characters: "+code, "")
	}
	if strings.Contains(code, ExtendedMarker) {
		return newError(InvalidCommand, op, "extended command code contains the extended marker: "+code, "")
	}
	return nil
}

func (r *Rotator) extended(op, code, args string) (string, error) {
	if err := validateCode(op, code); err != nil {
		return "", err
	}
	reply, err := r.query(op, ExtendedMarker+code+args)
	if err != nil {
		return "", err
	}
	return parseExtended(op, code, reply)
}

// parseExtended unwraps the status envelope of an extended reply.
func parseExtended(op, code string, reply Reply) (string, error) {
	if len(reply) == 0 || reply[0] == "" {
		return "", newError(NoResponse, op, "no reply to "+ExtendedMarker+code, "")
	}
	first := reply[0]
	status := first
	if len(status) > statusWidth {
		status = status[:statusWidth]
	}
	switch {
	case strings.HasPrefix(status, ErrorMarker):
		return "", newError(DeviceRejected, op, "", first)
	case !strings.HasPrefix(status, AckMarker):
		return "", newError(MalformedReply, op, "missing status marker", first)
	}
	// The acknowledgement echoes the command code; anything else is a
	// stale reply to an earlier command.
	echo := first[len(AckMarker):]
	if !strings.HasPrefix(echo, code[:2]) {
		return "", newError(MalformedReply, op, "reply is for a different command than "+code, first)
	}
	if len(first) <= payloadOffset {
		return "", nil
	}
	return strings.TrimSpace(first[payloadOffset:]), nil
}

// Version returns the firmware code version.
func (r *Rotator) Version() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extended("version", extVersion, "")
}
