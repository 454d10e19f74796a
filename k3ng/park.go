package k3ng

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LocationLength is the width of the controller's location code, a
// Maidenhead locator at subsquare precision.
const LocationLength = 6

// Location is a 6 character station location code such as "FN42hn".
type Location string

func ParseLocation(code string) (Location, error) {
	if len(code) != LocationLength {
		return "", newError(InvalidArgument, "parse location", fmt.Sprintf("location must be %d characters, got %q", LocationLength, code), "")
	}
	return Location(code), nil
}

// SetLocation sends the station location. The firmware offers no
// confirmation beyond its reply text, which is returned for the caller to
// check. Nothing is saved to EEPROM.
func (r *Rotator) SetLocation(code string) (Reply, error) {
	const op = "set location"
	if len(code) != LocationLength {
		return nil, newError(InvalidArgument, op, fmt.Sprintf("location must be %d characters, got %q", LocationLength, code), "")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query(op, cmdSetGrid+code)
}

// Save writes the current settings to EEPROM. The controller restarts
// afterwards, so the session is primed again once PostSave has passed.
func (r *Rotator) Save() error {
	const op = "save"
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.write(op, cmdSave); err != nil {
		return err
	}
	r.wait(r.timing.PostSave)
	return r.prime(op)
}

// Park toggles parking and returns the controller's reply.
func (r *Rotator) Park() (Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query("park", cmdPark)
}

// Autopark reports the autopark setting.
func (r *Rotator) Autopark() (Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query("autopark", cmdAutopark)
}

// MaxAutoparkMinutes is the longest autopark delay the firmware accepts.
const MaxAutoparkMinutes = 9999

// SetAutopark sets the idle time in minutes before the rotator parks
// itself. Zero sends the distinct disable command rather than a zero
// duration.
func (r *Rotator) SetAutopark(minutes int) (Reply, error) {
	const op = "set autopark"
	var cmd string
	switch {
	case minutes == 0:
		cmd = cmdAutopark + "0"
	case minutes > 0 && minutes <= MaxAutoparkMinutes:
		cmd = fmt.Sprintf("%s%04d", cmdAutopark, minutes)
	default:
		return nil, newError(InvalidArgument, op, fmt.Sprintf("autopark must be 0 to %d minutes, got %d", MaxAutoparkMinutes, minutes), "")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query(op, cmd)
}

func (r *Rotator) DisableAutopark() (Reply, error) {
	return r.SetAutopark(0)
}

// ParkPosition is a park location in whole degrees.
type ParkPosition struct {
	Azimuth   int `json:"azimuth" yaml:"azimuth"`
	Elevation int `json:"elevation" yaml:"elevation"`
}

func (p ParkPosition) Validate() error {
	if p.Azimuth < 0 || p.Azimuth > MaxAzimuth {
		return fmt.Errorf("park azimuth %d is outside 0 to %v", p.Azimuth, MaxAzimuth)
	}
	if p.Elevation < 0 || p.Elevation > MaxElevation {
		return fmt.Errorf("park elevation %d is outside 0 to %v", p.Elevation, MaxElevation)
	}
	return nil
}

// SetParkLocation stores the park position and reads it back. An
// acknowledgement does not mean the value was stored; a read-back that
// differs is VerificationFailed.
func (r *Rotator) SetParkLocation(p ParkPosition) error {
	const op = "set park location"
	if err := p.Validate(); err != nil {
		return &Error{Kind: InvalidArgument, Op: op, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.extended(op, extParkAzimuth, fmt.Sprintf("%03d", p.Azimuth)); err != nil {
		return err
	}
	if _, err := r.extended(op, extParkElev, fmt.Sprintf("%03d", p.Elevation)); err != nil {
		return err
	}
	got, raw, err := r.parkLocation(op)
	if err != nil {
		return err
	}
	if got != p {
		return newError(VerificationFailed, op,
			fmt.Sprintf("park location reads %d/%d after setting %d/%d", got.Azimuth, got.Elevation, p.Azimuth, p.Elevation),
			raw)
	}
	return nil
}

func (r *Rotator) ParkLocation() (ParkPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, _, err := r.parkLocation("park location")
	return p, err
}

// parkLocation reads both park axes and returns the raw payloads joined
// by a slash.
func (r *Rotator) parkLocation(op string) (ParkPosition, string, error) {
	var p ParkPosition
	var raw []string
	for _, f := range []struct {
		code string
		dest *int
	}{
		{extParkAzimuth, &p.Azimuth},
		{extParkElev, &p.Elevation},
	} {
		payload, err := r.extended(op, f.code, "")
		if err != nil {
			return ParkPosition{}, "", err
		}
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return ParkPosition{}, "", &Error{Kind: MalformedReply, Op: op, Raw: payload, Err: err}
		}
		*f.dest = int(math.Round(v))
		raw = append(raw, payload)
	}
	return p, strings.Join(raw, "/"), nil
}

// SetTracking turns satellite tracking on or off.
func (r *Rotator) SetTracking(on bool) (Reply, error) {
	arg := "0"
	if on {
		arg = "1"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query("set tracking", cmdTracking+arg)
}

// TrackingStatus returns the controller's satellite tracking report.
func (r *Rotator) TrackingStatus() (Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.query("tracking status", cmdTrackInfo)
}
