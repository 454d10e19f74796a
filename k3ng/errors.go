package k3ng

import (
	"errors"
	"fmt"

	"github.com/w1xm/k3ng_interface/link"
)

// Kind classifies a failure so callers can choose a remedy without
// inspecting device text.
type Kind int

const (
	KindUnknown Kind = iota

	// Transport; generally fatal to the session.
	DeviceNotFound
	PermissionDenied
	LinkError

	// Caller errors, rejected before anything is transmitted.
	InvalidCommand
	InvalidArgument

	// The device answered, but not usably.
	NoResponse
	DeviceRejected
	MalformedReply

	// The envelope succeeded but the operation's postcondition did not hold.
	TleCorrupt
	TleStorageFull
	TleNotConfirmed
	CalibrationFailed
	VerificationFailed
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown error",
	DeviceNotFound:     "device not found",
	PermissionDenied:   "permission denied",
	LinkError:          "link error",
	InvalidCommand:     "invalid command",
	InvalidArgument:    "invalid argument",
	NoResponse:         "no response",
	DeviceRejected:     "device rejected command",
	MalformedReply:     "malformed reply",
	TleCorrupt:         "TLE corrupt",
	TleStorageFull:     "TLE storage full",
	TleNotConfirmed:    "TLE not confirmed",
	CalibrationFailed:  "calibration failed",
	VerificationFailed: "verification failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every Rotator operation.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "load tle".
	Op  string
	Msg string
	// Raw is the device text that triggered the failure, if any.
	Raw string
	Err error
}

func (e *Error) Error() string {
	s := "k3ng"
	if e.Op != "" {
		s += ": " + e.Op
	}
	s += ": " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Raw != "" {
		s += fmt.Sprintf(" (device said %q)", e.Raw)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrTleCorrupt)
// holds for any TleCorrupt failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" || t.Raw != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDeviceNotFound     = &Error{Kind: DeviceNotFound}
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrLinkError          = &Error{Kind: LinkError}
	ErrInvalidCommand     = &Error{Kind: InvalidCommand}
	ErrInvalidArgument    = &Error{Kind: InvalidArgument}
	ErrNoResponse         = &Error{Kind: NoResponse}
	ErrDeviceRejected     = &Error{Kind: DeviceRejected}
	ErrMalformedReply     = &Error{Kind: MalformedReply}
	ErrTleCorrupt         = &Error{Kind: TleCorrupt}
	ErrTleStorageFull     = &Error{Kind: TleStorageFull}
	ErrTleNotConfirmed    = &Error{Kind: TleNotConfirmed}
	ErrCalibrationFailed  = &Error{Kind: CalibrationFailed}
	ErrVerificationFailed = &Error{Kind: VerificationFailed}
)

// KindOf reports the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return transportKind(err)
}

func transportKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, link.ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, link.ErrPermissionDenied):
		return PermissionDenied
	default:
		return LinkError
	}
}

func newError(kind Kind, op, msg, raw string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Raw: raw}
}

func linkError(op string, err error) *Error {
	return &Error{Kind: transportKind(err), Op: op, Err: err}
}
