// Command k3ngctl performs one-shot maintenance on a K3NG rotator
// controller: station setup, TLE loading, parking and calibration.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/w1xm/k3ng_interface/internal/config"
	"github.com/w1xm/k3ng_interface/internal/ephemeris"
	"github.com/w1xm/k3ng_interface/internal/logging"
	"github.com/w1xm/k3ng_interface/k3ng"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	serialPort = flag.String("serial", "", "serial port name, overrides the config file")
	logLevel   = flag.String("log_level", "", "log level (debug, info, warn, error)")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: k3ngctl [flags] <command> [args]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].help)
	}
	fmt.Fprintf(out, "\nflags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	c, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *serialPort != "" {
		cfg.Serial.Port = *serialPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	rot, err := k3ng.Open(cfg.Link(), cfg.K3NG(), logger.Named("k3ng"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", err, remedy(err))
		os.Exit(1)
	}
	defer rot.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	t := &tool{
		rot:    rot,
		cfg:    cfg,
		tles:   ephemeris.New(cfg.Ephemeris.BaseURL, cfg.Ephemeris.Timeout, logger.Named("ephemeris")),
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		logger: logger,
	}
	if err := c.run(t, ctx, flag.Args()[1:]); err != nil {
		logger.Debug("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		if r := remedy(err); r != "" {
			fmt.Fprintln(os.Stderr, r)
		}
		rot.Close()
		os.Exit(1)
	}
}

// remedy suggests what to do about a failure of the given kind.
func remedy(err error) string {
	switch k3ng.KindOf(err) {
	case k3ng.DeviceNotFound:
		return "Check that the controller is plugged in and the serial port name is right."
	case k3ng.PermissionDenied:
		return "Add your user to the group owning the serial device (often dialout) and log in again."
	case k3ng.NoResponse:
		return "The controller did not answer; check the baud rate and that the firmware is running."
	case k3ng.TleStorageFull:
		return "Load fewer TLEs; the controller's EEPROM is full."
	case k3ng.TleCorrupt:
		return "The controller rejected the TLE; fetch a fresh copy and retry."
	}
	return ""
}
