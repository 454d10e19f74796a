package k3ng

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/k3ng_interface/k3ng/sim"
)

func TestSetPosition(t *testing.T) {
	dev := sim.NewDevice()
	r, conn := newSimRotator(t, dev)
	require.NoError(t, r.SetAzimuthPosition(5))
	require.NoError(t, r.SetAzimuthPosition(180))
	require.NoError(t, r.SetElevationPosition(45.5))
	require.NoError(t, r.SetAzimuthPosition(360))
	assert.Equal(t, []string{`\?GA05.00`, `\?GA180.00`, `\?GE45.50`, `\?GA360.00`}, conn.Sent)
}

func TestSetPositionRejectsOutOfRange(t *testing.T) {
	for _, test := range []struct {
		name string
		set  func(*Rotator) error
	}{
		{"negative azimuth", func(r *Rotator) error { return r.SetAzimuthPosition(-1) }},
		{"azimuth past north", func(r *Rotator) error { return r.SetAzimuthPosition(360.5) }},
		{"elevation past zenith", func(r *Rotator) error { return r.SetElevationPosition(181) }},
		{"nan", func(r *Rotator) error { return r.SetElevationPosition(math.NaN()) }},
		{"inf", func(r *Rotator) error { return r.SetAzimuthPosition(math.Inf(1)) }},
	} {
		t.Run(test.name, func(t *testing.T) {
			r, conn := scripted()
			assert.ErrorIs(t, test.set(r), ErrInvalidArgument)
			assert.Empty(t, conn.sent)
		})
	}
}

func TestPositionsMove(t *testing.T) {
	dev := sim.NewDevice()
	r, _ := newSimRotator(t, dev)
	require.NoError(t, r.SetAzimuthPosition(20))
	require.NoError(t, r.SetElevationPosition(10))
	for i := 0; i < 400; i++ {
		dev.Step(25 * time.Millisecond)
	}
	s, err := r.Poll()
	require.NoError(t, err)
	assert.InDelta(t, 20, s.AzimuthPosition(), 0.1)
	assert.InDelta(t, 10, s.ElevationPosition(), 0.1)
}

func TestElevationNegativeZero(t *testing.T) {
	dev := sim.NewDevice()
	dev.NegativeZeroElevation = true
	r, _ := newSimRotator(t, dev)
	el, err := r.Elevation()
	require.NoError(t, err)
	assert.Equal(t, 0.0, el)
	assert.False(t, math.Signbit(el))
}

func TestParseElevation(t *testing.T) {
	for _, test := range []struct {
		in   string
		want float64
		err  bool
	}{
		{in: "00.-0", want: 0},
		{in: "-0.00", want: 0},
		{in: "-0", want: 0},
		{in: " 45.50 ", want: 45.5},
		{in: "0.00", want: 0},
		{in: "-", err: true},
		{in: "up", err: true},
		{in: "", err: true},
	} {
		t.Run(test.in, func(t *testing.T) {
			got, err := ParseElevation(test.in)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
			assert.False(t, math.Signbit(got))
		})
	}
}

func TestAzimuthMalformed(t *testing.T) {
	r, _ := scripted([]string{`\!OKAZnorth`})
	_, err := r.Azimuth()
	assert.ErrorIs(t, err, ErrMalformedReply)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "north", e.Raw)
}

func TestManualMotion(t *testing.T) {
	dev := sim.NewDevice()
	dev.ElPos = 30
	r, conn := newSimRotator(t, dev)
	for _, f := range []func() error{r.RotateUp, r.RotateDown, r.RotateCW, r.RotateCCW, r.StopAzimuth, r.StopElevation, r.Stop} {
		require.NoError(t, f())
	}
	assert.Equal(t, []string{`\?RU`, `\?RD`, `\?RR`, `\?RL`, `\?SA`, `\?SE`, `\?SS`}, conn.Sent)
}

func TestCalibrate(t *testing.T) {
	dev := sim.NewDevice()
	r, conn := newSimRotator(t, dev)
	var slept []time.Duration
	r.sleep = func(d time.Duration) { slept = append(slept, d) }
	r.timing.PostCalibration = 2 * time.Second

	require.NoError(t, r.CalibrateFullUp())
	assert.Equal(t, 180.0, dev.ElPos)
	require.NoError(t, r.CalibrateFullDown())
	assert.Equal(t, 0.0, dev.ElPos)
	require.NoError(t, r.CalibrateFullCW())
	require.NoError(t, r.CalibrateFullCCW())
	assert.Equal(t, 0.0, dev.AzPos)

	assert.Equal(t, []string{`\?CU`, `\?CD`, `\?CW`, `\?CC`}, conn.Sent)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, slept)
}

func TestCalibrateRejected(t *testing.T) {
	dev := sim.NewDevice()
	dev.RejectCalibration = true
	r, _ := newSimRotator(t, dev)
	err := r.CalibrateFullCW()
	assert.ErrorIs(t, err, ErrCalibrationFailed)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "FAIL", e.Raw)

	r, _ = scripted([]string{`\!??CU`})
	assert.ErrorIs(t, r.CalibrateFullUp(), ErrDeviceRejected)
}
