// Command k3ngd serves a K3NG rotator controller over HTTP, websocket and
// the rotctld protocol, and optionally publishes its position to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w1xm/k3ng_interface/internal/config"
	"github.com/w1xm/k3ng_interface/internal/ephemeris"
	"github.com/w1xm/k3ng_interface/internal/logging"
	"github.com/w1xm/k3ng_interface/internal/metrics"
	"github.com/w1xm/k3ng_interface/k3ng"
	"github.com/w1xm/k3ng_interface/k3ng/sim"
	"github.com/w1xm/k3ng_interface/link"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	serialPort  = flag.String("serial", "", "serial port name, overrides the config file")
	simulate    = flag.Bool("simulate", false, "drive a simulated controller instead of a serial port")
	staticDir   = flag.String("static_dir", "", "directory containing static files")
	httpAddr    = flag.String("http", "", "HTTP listen address, overrides the config file")
	rotctldAddr = flag.String("rotctld", "", "rotctld listen address, overrides the config file")
	logLevel    = flag.String("log_level", "", "log level (debug, info, warn, error), overrides the config file")
)

// simIdle is the reply gap of the simulated serial line.
const simIdle = 20 * time.Millisecond

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for dst, src := range map[*string]string{
		&cfg.Serial.Port:        *serialPort,
		&cfg.Daemon.HTTPAddr:    *httpAddr,
		&cfg.Daemon.RotctldAddr: *rotctldAddr,
		&cfg.LogLevel:           *logLevel,
	} {
		if src != "" {
			*dst = src
		}
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("k3ngd failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	var rot *k3ng.Rotator
	var err error
	if *simulate {
		s, port := sim.New(sim.NewDevice(), simIdle, logger.Named("sim"))
		g.Go(func() error { return s.Run(ctx) })
		lc := cfg.Link()
		lc.InterByteTimeout = simIdle
		rot, err = k3ng.New(link.New(port, lc), cfg.K3NG(), logger.Named("k3ng"))
	} else {
		rot, err = k3ng.Open(cfg.Link(), cfg.K3NG(), logger.Named("k3ng"))
	}
	if err != nil {
		return fmt.Errorf("opening rotator: %w", err)
	}
	defer rot.Close()
	if v, err := rot.Version(); err == nil {
		logger.Info("connected to rotator", zap.String("version", v))
	}

	m, err := metrics.New(nil)
	if err != nil {
		return err
	}
	tles := ephemeris.New(cfg.Ephemeris.BaseURL, cfg.Ephemeris.Timeout, logger.Named("ephemeris"))
	s := NewServer(rot, tles, m, logger)

	g.Go(func() error { return s.PollLoop(ctx, cfg.Daemon.PollInterval) })

	if cfg.MQTT.Broker != "" {
		p, err := newMQTTPublisher(cfg.MQTT, logger.Named("mqtt"))
		if err != nil {
			return err
		}
		defer p.Close()
		g.Go(func() error { return s.PublishLoop(ctx, p) })
	}

	if cfg.Daemon.RotctldAddr != "" {
		g.Go(func() error { return s.ListenRotctld(ctx, cfg.Daemon.RotctldAddr) })
	}

	srv := &http.Server{
		Handler:      s.Router(*staticDir),
		Addr:         cfg.Daemon.HTTPAddr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
