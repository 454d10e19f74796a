package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/w1xm/k3ng_interface/internal/config"
	"github.com/w1xm/k3ng_interface/internal/maidenhead"
	"github.com/w1xm/k3ng_interface/k3ng"
	"go.uber.org/zap"
)

// TLESource looks up element sets by NORAD catalog number.
type TLESource interface {
	Fetch(ctx context.Context, noradID int) (k3ng.TLE, error)
}

type tool struct {
	rot    *k3ng.Rotator
	cfg    *config.Config
	tles   TLESource
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
	// sleep paces the interactive motion test.
	sleep func(time.Duration)
}

type command struct {
	help string
	run  func(t *tool, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"setup":     {"set the station location and clock, optionally saving to EEPROM", (*tool).setup},
	"load-tle":  {"load TLEs by NORAD id from SatNOGS, or from -file", (*tool).loadTLE},
	"tles":      {"list the TLEs stored on the controller", (*tool).listTLEs},
	"park":      {"toggle parking", (*tool).park},
	"set-park":  {"set the park position from [az el] or the current position, then save", (*tool).setPark},
	"autopark":  {"show autopark, or set it to [minutes|off]", (*tool).autopark},
	"tracking":  {"show satellite tracking, or turn it [on|off]", (*tool).tracking},
	"test":      {"walk the rotator through each direction interactively", (*tool).motionTest},
	"calibrate": {"calibrate against an end stop: up, down, cw or ccw", (*tool).calibrate},
	"version":   {"print the firmware version", (*tool).version},
	"time":      {"print the controller clock, or set it with [now|YYYYMMDDHHMMSS]", (*tool).clock},
}

var errUsage = errors.New("bad arguments")

func (t *tool) printReply(reply k3ng.Reply) {
	for _, line := range reply {
		fmt.Fprintln(t.out, line)
	}
}

// confirm asks a yes/no question, defaulting to no.
func (t *tool) confirm(prompt string) (bool, error) {
	fmt.Fprintf(t.out, "%s [y/N] ", prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (t *tool) wait(d time.Duration) {
	if t.sleep != nil {
		t.sleep(d)
		return
	}
	time.Sleep(d)
}

func (t *tool) setup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	grid := fs.String("grid", t.cfg.Station.Grid, "6 character Maidenhead locator")
	lat := fs.Float64("lat", 0, "station latitude, used with -lon instead of -grid")
	lon := fs.Float64("lon", 0, "station longitude")
	ts := fs.String("time", "now", "clock value, YYYYMMDDHHMMSS in UTC or now")
	save := fs.Bool("save", false, "save settings to EEPROM afterwards")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	latLon := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lon" {
			latLon = true
		}
	})
	if latLon {
		g, err := maidenhead.Locator(*lat, *lon)
		if err != nil {
			return err
		}
		*grid = g
	}
	if *grid == "" {
		return fmt.Errorf("%w: no station location; pass -grid or -lat/-lon", errUsage)
	}

	reply, err := t.rot.SetLocation(*grid)
	if err != nil {
		return err
	}
	// The controller only confirms by echoing the locator.
	if !reply.Contains(*grid) {
		return fmt.Errorf("controller did not confirm location %s: %q", *grid, reply.String())
	}
	fmt.Fprintf(t.out, "location set to %s\n", *grid)

	if err := t.rot.SetTime(*ts); err != nil {
		return err
	}
	now, err := t.rot.GetTime()
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "clock set to %s\n", now.Format(time.RFC3339))

	if p := t.cfg.Station.Park; p != nil {
		if err := t.rot.SetParkLocation(*p); err != nil {
			return err
		}
		fmt.Fprintf(t.out, "park position set to %d/%d\n", p.Azimuth, p.Elevation)
	}
	if m := t.cfg.Station.Autopark; m != nil {
		reply, err := t.rot.SetAutopark(*m)
		if err != nil {
			return err
		}
		t.printReply(reply)
	}

	if *save {
		if err := t.rot.Save(); err != nil {
			return err
		}
		fmt.Fprintln(t.out, "saved to EEPROM")
	}
	return nil
}

func (t *tool) loadTLE(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("load-tle", flag.ContinueOnError)
	file := fs.String("file", "", "read TLEs from a 3 line element file instead of SatNOGS")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var tles []k3ng.TLE
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		tles, err = readTLEFile(f)
		if err != nil {
			return fmt.Errorf("%s: %w", *file, err)
		}
	}
	for _, arg := range fs.Args() {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: NORAD id %q is not a number", errUsage, arg)
		}
		tle, err := t.tles.Fetch(ctx, id)
		if err != nil {
			return err
		}
		tles = append(tles, tle)
	}
	if len(tles) == 0 {
		return fmt.Errorf("%w: give NORAD ids or -file", errUsage)
	}
	if err := t.rot.LoadTLEs(tles...); err != nil {
		return err
	}
	for _, tle := range tles {
		fmt.Fprintf(t.out, "loaded %s\n", tle.Title)
	}
	return nil
}

// readTLEFile parses title/line1/line2 triples, skipping blank lines.
func readTLEFile(r io.Reader) ([]k3ng.TLE, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), " \r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines)%3 != 0 {
		return nil, fmt.Errorf("%d lines is not a whole number of 3 line elements", len(lines))
	}
	var tles []k3ng.TLE
	for i := 0; i < len(lines); i += 3 {
		tle, err := k3ng.NewTLE(lines[i], lines[i+1], lines[i+2])
		if err != nil {
			return nil, err
		}
		tles = append(tles, tle)
	}
	return tles, nil
}

func (t *tool) listTLEs(ctx context.Context, args []string) error {
	tles, err := t.rot.ReadTLEs()
	if err != nil {
		return err
	}
	if len(tles) == 0 {
		fmt.Fprintln(t.out, "no TLEs stored")
	}
	for _, tle := range tles {
		fmt.Fprintf(t.out, "%s\n%s\n%s\n", tle.Title, tle.Line1, tle.Line2)
	}
	return nil
}

func (t *tool) park(ctx context.Context, args []string) error {
	reply, err := t.rot.Park()
	if err != nil {
		return err
	}
	t.printReply(reply)
	return nil
}

func (t *tool) setPark(ctx context.Context, args []string) error {
	var p k3ng.ParkPosition
	switch len(args) {
	case 2:
		az, err1 := strconv.Atoi(args[0])
		el, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: park position must be whole degrees", errUsage)
		}
		p = k3ng.ParkPosition{Azimuth: az, Elevation: el}
	case 0:
		fmt.Fprintln(t.out, "Move the antenna to the park position, then press enter.")
		if _, err := t.in.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		az, err := t.rot.Azimuth()
		if err != nil {
			return err
		}
		el, err := t.rot.Elevation()
		if err != nil {
			return err
		}
		p = k3ng.ParkPosition{Azimuth: int(math.Round(az)), Elevation: int(math.Round(el))}
		ok, err := t.confirm(fmt.Sprintf("Park at azimuth %d, elevation %d?", p.Azimuth, p.Elevation))
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("cancelled")
		}
	default:
		return fmt.Errorf("%w: set-park [az el]", errUsage)
	}
	if err := t.rot.SetParkLocation(p); err != nil {
		return err
	}
	if err := t.rot.Save(); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "park position saved: %d/%d\n", p.Azimuth, p.Elevation)
	return nil
}

func (t *tool) autopark(ctx context.Context, args []string) error {
	var reply k3ng.Reply
	var err error
	switch {
	case len(args) == 0:
		reply, err = t.rot.Autopark()
	case len(args) == 1 && args[0] == "off":
		reply, err = t.rot.DisableAutopark()
	case len(args) == 1:
		m, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return fmt.Errorf("%w: autopark [minutes|off]", errUsage)
		}
		reply, err = t.rot.SetAutopark(m)
	default:
		return fmt.Errorf("%w: autopark [minutes|off]", errUsage)
	}
	if err != nil {
		return err
	}
	t.printReply(reply)
	return nil
}

func (t *tool) tracking(ctx context.Context, args []string) error {
	var reply k3ng.Reply
	var err error
	switch {
	case len(args) == 0:
		reply, err = t.rot.TrackingStatus()
	case len(args) == 1 && (args[0] == "on" || args[0] == "off"):
		reply, err = t.rot.SetTracking(args[0] == "on")
	default:
		return fmt.Errorf("%w: tracking [on|off]", errUsage)
	}
	if err != nil {
		return err
	}
	t.printReply(reply)
	return nil
}

// motionTestStep is how long each direction is driven.
const motionTestStep = 3 * time.Second

func (t *tool) motionTest(ctx context.Context, args []string) error {
	steps := []struct {
		name string
		move func() error
		stop func() error
	}{
		{"up", t.rot.RotateUp, t.rot.StopElevation},
		{"down", t.rot.RotateDown, t.rot.StopElevation},
		{"clockwise", t.rot.RotateCW, t.rot.StopAzimuth},
		{"counterclockwise", t.rot.RotateCCW, t.rot.StopAzimuth},
	}
	for _, step := range steps {
		ok, err := t.confirm(fmt.Sprintf("Rotate %s for %v?", step.name, motionTestStep))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := step.move(); err != nil {
			return err
		}
		t.wait(motionTestStep)
		if err := step.stop(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return t.rot.Stop()
		}
	}
	ok, err := t.confirm("Return home to azimuth 0, elevation 0?")
	if err != nil || !ok {
		return err
	}
	if err := t.rot.SetAzimuthPosition(0); err != nil {
		return err
	}
	return t.rot.SetElevationPosition(0)
}

func (t *tool) calibrate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: calibrate up|down|cw|ccw", errUsage)
	}
	var f func() error
	switch args[0] {
	case "up":
		f = t.rot.CalibrateFullUp
	case "down":
		f = t.rot.CalibrateFullDown
	case "cw":
		f = t.rot.CalibrateFullCW
	case "ccw":
		f = t.rot.CalibrateFullCCW
	default:
		return fmt.Errorf("%w: calibrate up|down|cw|ccw", errUsage)
	}
	if err := f(); err != nil {
		return err
	}
	fmt.Fprintf(t.out, "calibrated %s\n", args[0])
	return nil
}

func (t *tool) version(ctx context.Context, args []string) error {
	v, err := t.rot.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.out, v)
	return nil
}

func (t *tool) clock(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
	case 1:
		if err := t.rot.SetTime(args[0]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: time [now|YYYYMMDDHHMMSS]", errUsage)
	}
	now, err := t.rot.GetTime()
	if err != nil {
		return err
	}
	fmt.Fprintln(t.out, now.Format(time.RFC3339))
	return nil
}
