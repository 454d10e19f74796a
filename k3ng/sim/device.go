// Package sim emulates a K3NG rotator controller: its command set, its
// reply framing, a simple two-axis motion model and a handful of firmware
// faults that can be switched on.
package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Maximum acceleration in degrees/second^2
	maxAccel = 30
	// Maximum velocity in degrees/second
	maxVel = 10
	minVel = 0.1

	maxAz = 360
	maxEl = 180

	// DefaultTLECapacity approximates the EEPROM left for TLEs on an
	// ATmega2560 build.
	DefaultTLECapacity = 2048
)

type axisMode int

const (
	modeNone axisMode = iota
	modePosition
	modeVelocity
)

// Entry is one stored element set.
type Entry struct {
	Title, Line1, Line2 string
}

// Device is the controller's command state machine. It is safe for
// concurrent use.
type Device struct {
	mu sync.Mutex

	Version string
	Grid    string

	AzPos, ElPos float64
	AzVel, ElVel float64
	cmdAz, cmdEl float64
	azMode       axisMode
	elMode       axisMode

	ParkAz, ParkEl  int
	Parked          bool
	AutoparkMinutes int
	Tracking        bool

	TLEs        []Entry
	TLECapacity int

	Saves int

	// Faults.
	CorruptTLE            bool
	ClockSkew             time.Duration
	NegativeZeroElevation bool
	RejectCalibration     bool

	// IgnoreParkLocation acknowledges park location writes without
	// storing them.
	IgnoreParkLocation bool

	now         func() time.Time
	clockOffset time.Duration
	// primed is false after power-on or restart until a basic command
	// arrives; extended commands fail until then.
	primed  bool
	loading bool
	pending []string
}

func NewDevice() *Device {
	return &Device{
		Version:     "2024.01.01.01",
		TLECapacity: DefaultTLECapacity,
		now:         time.Now,
	}
}

// SetNow replaces the device's time source.
func (d *Device) SetNow(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Clock is what the controller currently believes the time is.
func (d *Device) Clock() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock()
}

func (d *Device) clock() time.Time {
	return d.now().UTC().Add(d.clockOffset + d.ClockSkew)
}

// Restart drops protocol state the way a reset does.
func (d *Device) Restart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restart()
}

func (d *Device) restart() {
	d.primed = false
	d.loading = false
	d.pending = nil
	d.azMode, d.elMode = modeNone, modeNone
	d.AzVel, d.ElVel = 0, 0
}

// Handle processes one line from the host and returns the reply lines,
// each reply ending with one empty line. Lines consumed without a reply
// (TLE records) return nil.
func (d *Device) Handle(line string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loading {
		if line == "" {
			return d.finishUpload()
		}
		d.pending = append(d.pending, line)
		return nil
	}
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, `\?`):
		return d.extended(line[2:])
	case strings.HasPrefix(line, `\`):
		d.primed = true
		return d.basic(line[1:])
	}
	return reply("Error: " + line)
}

func reply(lines ...string) []string {
	return append(lines, "")
}

func (d *Device) basic(cmd string) []string {
	if cmd == "" {
		return reply("Error")
	}
	args := cmd[1:]
	switch cmd[0] {
	case 'C':
		return reply(d.clock().Format("2006-01-02 15:04:05Z"))
	case 'O':
		t, err := time.Parse("20060102150405", args)
		if err != nil || len(args) != 14 {
			return reply("Error: bad time " + args)
		}
		d.clockOffset = t.Sub(d.now().UTC())
		return reply("Clock set to " + t.Format("2006-01-02 15:04:05Z"))
	case 'G':
		if len(args) != 6 {
			return reply("Error: bad grid " + args)
		}
		d.Grid = args
		return reply("Grid set to " + args)
	case 'Q':
		d.Saves++
		d.restart()
		return reply("Wrote to memory")
	case 'P':
		return d.park()
	case 'Y':
		return d.autopark(args)
	case '#':
		d.loading = true
		d.pending = nil
		return reply("Paste TLE file, end with a blank line")
	case '$':
		return d.dumpTLEs()
	case '^':
		switch args {
		case "0":
			d.Tracking = false
			return reply("Satellite tracking deactivated")
		case "1":
			d.Tracking = true
			return reply("Satellite tracking activated")
		}
		return reply("Error: bad tracking argument " + args)
	case '@':
		return d.trackingStatus()
	}
	return reply("Error: unknown command " + cmd)
}

func (d *Device) park() []string {
	if d.Parked {
		d.Parked = false
		return reply("Park aborted")
	}
	d.Parked = true
	d.setTarget(&d.azMode, &d.cmdAz, float64(d.ParkAz))
	d.setTarget(&d.elMode, &d.cmdEl, float64(d.ParkEl))
	return reply("Parking")
}

func (d *Device) autopark(args string) []string {
	switch args {
	case "":
		if d.AutoparkMinutes == 0 {
			return reply("Autopark: off")
		}
		return reply(fmt.Sprintf("Autopark: %d minutes", d.AutoparkMinutes))
	case "0":
		d.AutoparkMinutes = 0
		return reply("Autopark disabled")
	}
	m, err := strconv.Atoi(args)
	if err != nil || len(args) != 4 || m <= 0 {
		return reply("Error: bad autopark " + args)
	}
	d.AutoparkMinutes = m
	return reply(fmt.Sprintf("Autopark: %d minutes", m))
}

func (d *Device) trackingStatus() []string {
	state := "OFF"
	if d.Tracking {
		state = "ON"
	}
	sat := "none"
	if len(d.TLEs) > 0 {
		sat = d.TLEs[0].Title
	}
	return reply("Satellite: "+sat, "Tracking: "+state)
}

func (d *Device) dumpTLEs() []string {
	var out []string
	for _, e := range d.TLEs {
		out = append(out, e.Title, e.Line1, e.Line2)
	}
	return reply(out...)
}

func (d *Device) finishUpload() []string {
	d.loading = false
	lines := d.pending
	d.pending = nil
	if d.CorruptTLE || len(lines) == 0 || len(lines)%3 != 0 {
		return reply("TLE corrupt")
	}
	var entries []Entry
	for i := 0; i < len(lines); i += 3 {
		e := Entry{Title: lines[i], Line1: lines[i+1], Line2: lines[i+2]}
		if !validLine(e.Line1, '1') || !validLine(e.Line2, '2') {
			return reply("TLE corrupt")
		}
		entries = append(entries, e)
	}
	var out []string
	var stored []Entry
	used := 0
	truncated := false
	for _, e := range entries {
		size := len(e.Title) + len(e.Line1) + len(e.Line2) + 3
		if used+size > d.TLECapacity {
			truncated = true
			break
		}
		used += size
		stored = append(stored, e)
		out = append(out, e.Title)
	}
	d.TLEs = stored
	if truncated {
		out = append(out, "File was truncated due to lack of EEPROM storage")
	}
	return reply(out...)
}

func validLine(line string, number byte) bool {
	if len(line) != 69 || line[0] != number {
		return false
	}
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return int(line[68]-'0') == sum%10
}

func ok(code, payload string) []string {
	return reply(`\!OK` + code + payload)
}

func fail(code string) []string {
	return reply(`\!??` + code)
}

func (d *Device) extended(cmd string) []string {
	if len(cmd) < 2 {
		return fail(cmd)
	}
	code, args := cmd[:2], cmd[2:]
	if !d.primed {
		return fail(code)
	}
	switch code {
	case "CV":
		return ok(code, d.Version)
	case "AZ":
		return ok(code, fmt.Sprintf("%.2f", d.AzPos))
	case "EL":
		if d.NegativeZeroElevation && d.ElPos == 0 {
			return ok(code, "00.-0")
		}
		return ok(code, fmt.Sprintf("%.2f", d.ElPos))
	case "GA", "GE":
		v, err := strconv.ParseFloat(args, 64)
		if err != nil {
			return fail(code)
		}
		if code == "GA" && v >= 0 && v <= maxAz {
			d.setTarget(&d.azMode, &d.cmdAz, v)
			return ok(code, "")
		}
		if code == "GE" && v >= 0 && v <= maxEl {
			d.setTarget(&d.elMode, &d.cmdEl, v)
			return ok(code, "")
		}
		return fail(code)
	case "SA":
		d.azMode, d.cmdAz = modeNone, 0
		return ok(code, "")
	case "SE":
		d.elMode, d.cmdEl = modeNone, 0
		return ok(code, "")
	case "SS":
		d.azMode, d.elMode = modeNone, modeNone
		return ok(code, "")
	case "RU", "RD":
		d.elMode, d.cmdEl = modeVelocity, maxVel
		if code == "RD" {
			d.cmdEl = -maxVel
		}
		return ok(code, "")
	case "RR", "RL":
		d.azMode, d.cmdAz = modeVelocity, maxVel
		if code == "RL" {
			d.cmdAz = -maxVel
		}
		return ok(code, "")
	case "CU", "CD", "CW", "CC":
		if d.RejectCalibration {
			return ok(code, "FAIL")
		}
		switch code {
		case "CU":
			d.ElPos = maxEl
		case "CD":
			d.ElPos = 0
		case "CW":
			d.AzPos = math.Nextafter(maxAz, 0)
		case "CC":
			d.AzPos = 0
		}
		return ok(code, "OK")
	case "PA", "PE":
		dest := &d.ParkAz
		limit := maxAz
		if code == "PE" {
			dest, limit = &d.ParkEl, maxEl
		}
		if args == "" {
			return ok(code, fmt.Sprintf("%03d", *dest))
		}
		v, err := strconv.Atoi(args)
		if err != nil || v < 0 || v > limit {
			return fail(code)
		}
		if !d.IgnoreParkLocation {
			*dest = v
		}
		return ok(code, "")
	}
	return fail(code)
}

func (d *Device) setTarget(mode *axisMode, target *float64, v float64) {
	*mode = modePosition
	*target = v
}

// Step advances the motion model by dt.
func (d *Device) Step(dt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AzVel = d.axisVelocity(d.azMode, d.AzPos, d.cmdAz, d.AzVel, dt, true)
	d.ElVel = d.axisVelocity(d.elMode, d.ElPos, d.cmdEl, d.ElVel, dt, false)

	d.AzPos = math.Mod(d.AzPos+d.AzVel*dt.Seconds()+maxAz, maxAz)
	d.ElPos += d.ElVel * dt.Seconds()
	if d.ElPos < 0 {
		d.ElPos, d.ElVel = 0, 0
	} else if d.ElPos > maxEl {
		d.ElPos, d.ElVel = maxEl, 0
	}
}

func (d *Device) axisVelocity(mode axisMode, pos, target, vel float64, dt time.Duration, wrap bool) float64 {
	switch mode {
	case modePosition:
		return velServo(vel, posServo(pos, target, wrap), dt)
	case modeVelocity:
		return velServo(vel, target, dt)
	}
	return velServo(vel, 0, dt)
}

// posServo returns a target velocity for the given move
func posServo(s, t float64, wrap bool) float64 {
	move := t - s
	if wrap {
		move = math.Remainder(move, maxAz)
	}
	delta := 2 * math.Abs(move)
	if delta > maxVel {
		delta = maxVel
	}
	if move < 0 {
		delta = -delta
	}
	return delta
}

// velServo returns an actual velocity for the given current and target velocity
func velServo(s, t float64, dt time.Duration) float64 {
	delta := math.Abs(t - s)
	if delta > maxAccel*dt.Seconds() {
		delta = maxAccel * dt.Seconds()
	}
	if t < s {
		delta = -delta
	}
	new := s + delta
	if math.Abs(new) < minVel {
		return 0
	}
	if new > maxVel {
		return maxVel
	} else if new < -maxVel {
		return -maxVel
	}
	return new
}
