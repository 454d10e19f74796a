package k3ng

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Axis limits accepted by the position set commands.
const (
	MaxAzimuth   = 360.0
	MaxElevation = 180.0
)

func formatDegrees(op string, deg, max float64) (string, error) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) || deg < 0 || deg > max {
		return "", newError(InvalidArgument, op, fmt.Sprintf("%v is outside 0 to %v degrees", deg, max), "")
	}
	return fmt.Sprintf("%05.2f", deg), nil
}

func (r *Rotator) SetAzimuthPosition(deg float64) error {
	const op = "set azimuth"
	arg, err := formatDegrees(op, deg, MaxAzimuth)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.extended(op, extGotoAzimuth, arg)
	return err
}

func (r *Rotator) SetElevationPosition(deg float64) error {
	const op = "set elevation"
	arg, err := formatDegrees(op, deg, MaxElevation)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.extended(op, extGotoElev, arg)
	return err
}

func (r *Rotator) Azimuth() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.azimuth("azimuth")
}

func (r *Rotator) azimuth(op string) (float64, error) {
	payload, err := r.extended(op, extAzimuth, "")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return 0, &Error{Kind: MalformedReply, Op: op, Raw: payload, Err: err}
	}
	return v, nil
}

func (r *Rotator) Elevation() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elevation("elevation")
}

func (r *Rotator) elevation(op string) (float64, error) {
	payload, err := r.extended(op, extElevation, "")
	if err != nil {
		return 0, err
	}
	v, err := ParseElevation(payload)
	if err != nil {
		return 0, &Error{Kind: MalformedReply, Op: op, Raw: payload, Err: err}
	}
	return v, nil
}

// ParseElevation parses an elevation reading. The firmware prints zero
// elevation as a malformed negative zero such as "00.-0" or "-0.00";
// both read as 0.
func ParseElevation(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if isNegativeZero(s) {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, nil
	}
	return v, nil
}

func isNegativeZero(s string) bool {
	return strings.Contains(s, "-") && strings.ContainsAny(s, "0") && strings.Trim(s, "0.-") == ""
}

func (r *Rotator) simple(op, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.extended(op, code, "")
	return err
}

func (r *Rotator) RotateUp() error   { return r.simple("rotate up", extRotateUp) }
func (r *Rotator) RotateDown() error { return r.simple("rotate down", extRotateDown) }
func (r *Rotator) RotateCW() error   { return r.simple("rotate cw", extRotateCW) }
func (r *Rotator) RotateCCW() error  { return r.simple("rotate ccw", extRotateCCW) }

func (r *Rotator) StopAzimuth() error   { return r.simple("stop azimuth", extStopAzimuth) }
func (r *Rotator) StopElevation() error { return r.simple("stop elevation", extStopElev) }

// Stop halts both axes.
func (r *Rotator) Stop() error { return r.simple("stop", extStopAll) }

func (r *Rotator) CalibrateFullUp() error   { return r.calibrate("calibrate full up", extCalFullUp) }
func (r *Rotator) CalibrateFullDown() error { return r.calibrate("calibrate full down", extCalFullDown) }
func (r *Rotator) CalibrateFullCW() error   { return r.calibrate("calibrate full cw", extCalFullCW) }
func (r *Rotator) CalibrateFullCCW() error  { return r.calibrate("calibrate full ccw", extCalFullCCW) }

// calibrate checks the payload as well as the envelope: the controller can
// acknowledge the command and still refuse the calibration.
func (r *Rotator) calibrate(op, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, err := r.extended(op, code, "")
	if err != nil {
		return err
	}
	r.wait(r.timing.PostCalibration)
	if !strings.Contains(payload, CalibrationAck) {
		return newError(CalibrationFailed, op, "calibration was not acknowledged", payload)
	}
	return nil
}
