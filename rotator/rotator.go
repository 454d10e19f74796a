// Package rotator defines what the front ends need from an antenna
// rotator, independent of the controller protocol behind it.
package rotator

type Rotator interface {
	Stop() error
	SetAzimuthPosition(angle float64) error
	SetElevationPosition(angle float64) error
}

type Status interface {
	AzimuthPosition() float64
	ElevationPosition() float64
}

type Poller interface {
	PollStatus() (Status, error)
}

// Mover drives an axis at its default speed until stopped.
type Mover interface {
	RotateUp() error
	RotateDown() error
	RotateCW() error
	RotateCCW() error
}

type AxisStopper interface {
	StopAzimuth() error
	StopElevation() error
}
