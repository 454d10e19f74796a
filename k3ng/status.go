package k3ng

import (
	"time"

	"github.com/w1xm/k3ng_interface/rotator"
)

// Status is one polled snapshot of the rotator.
type Status struct {
	// \?AZ returns:
	AzPos float64
	// \?EL returns:
	ElPos float64

	Time time.Time
}

func (s Status) AzimuthPosition() float64 {
	return s.AzPos
}

func (s Status) ElevationPosition() float64 {
	return s.ElPos
}

// Poll reads both axis positions in one locked exchange.
func (r *Rotator) Poll() (Status, error) {
	const op = "poll"
	r.mu.Lock()
	defer r.mu.Unlock()
	az, err := r.azimuth(op)
	if err != nil {
		return Status{}, err
	}
	el, err := r.elevation(op)
	if err != nil {
		return Status{}, err
	}
	return Status{AzPos: az, ElPos: el, Time: r.now()}, nil
}

// PollStatus is Poll for consumers of the rotator interfaces.
func (r *Rotator) PollStatus() (rotator.Status, error) {
	return r.Poll()
}
