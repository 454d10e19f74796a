package k3ng

import (
	"fmt"
	"time"
)

// ClockLayout is the 14 digit form the controller's clock is set with.
const ClockLayout = "20060102150405"

// Layouts the controller has been seen to report its clock in.
var clockReplyLayouts = []string{
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	ClockLayout,
}

func parseClock(line string) (time.Time, bool) {
	for _, layout := range clockReplyLayouts {
		candidates := []string{line}
		if len(line) > len(layout) {
			candidates = append(candidates, line[:len(layout)])
		}
		for _, c := range candidates {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// GetTime returns the controller's clock in UTC.
func (r *Rotator) GetTime() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, _, err := r.getTime("get time")
	return t, err
}

func (r *Rotator) getTime(op string) (time.Time, Reply, error) {
	reply, err := r.query(op, cmdClock)
	if err != nil {
		return time.Time{}, nil, err
	}
	if len(reply) == 0 {
		return time.Time{}, nil, newError(NoResponse, op, "no clock reading", "")
	}
	for _, line := range reply {
		if t, ok := parseClock(line); ok {
			return t, reply, nil
		}
	}
	return time.Time{}, reply, newError(MalformedReply, op, "no clock reading in reply", reply.String())
}

// SetTime sets the controller clock from a 14 digit YYYYMMDDHHMMSS UTC
// string, or from the current UTC time when ts is "" or "now". The clock is
// read back afterwards and must be within MaxClockSkew of the value set.
func (r *Rotator) SetTime(ts string) error {
	const op = "set time"
	var want time.Time
	if ts == "" || ts == "now" {
		want = r.now().UTC().Truncate(time.Second)
		ts = want.Format(ClockLayout)
	} else {
		if len(ts) != len(ClockLayout) {
			return newError(InvalidArgument, op, fmt.Sprintf("time must be %d characters, got %q", len(ClockLayout), ts), "")
		}
		var err error
		want, err = time.Parse(ClockLayout, ts)
		if err != nil {
			return newError(InvalidArgument, op, fmt.Sprintf("time %q is not YYYYMMDDHHMMSS", ts), "")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setClock(op, want, ts)
}

// SetClock sets the controller clock to t and verifies it.
func (r *Rotator) SetClock(t time.Time) error {
	t = t.UTC().Truncate(time.Second)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setClock("set clock", t, t.Format(ClockLayout))
}

func (r *Rotator) setClock(op string, want time.Time, ts string) error {
	if _, err := r.query(op, cmdSetClock+ts); err != nil {
		return err
	}
	got, reply, err := r.getTime(op)
	if err != nil {
		return err
	}
	skew := got.Sub(want)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return newError(VerificationFailed, op,
			fmt.Sprintf("clock reads %s after setting %s (off by %s)", got.Format(time.RFC3339), want.Format(time.RFC3339), skew),
			reply.String())
	}
	return nil
}
