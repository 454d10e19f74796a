package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/k3ng_interface/internal/metrics"
	"github.com/w1xm/k3ng_interface/k3ng"
	"github.com/w1xm/k3ng_interface/rotator"
	"go.uber.org/zap"
)

// Device is what the daemon drives. *k3ng.Rotator implements it.
type Device interface {
	rotator.Rotator
	rotator.Poller
	rotator.Mover
	rotator.AxisStopper
	Park() (k3ng.Reply, error)
	LoadTLE(tle k3ng.TLE) error
	Version() (string, error)
}

// TLESource looks up element sets by NORAD catalog number.
type TLESource interface {
	Fetch(ctx context.Context, noradID int) (k3ng.TLE, error)
}

// Status is the daemon's view of the rotator, as served over HTTP,
// websocket and MQTT.
type Status struct {
	Azimuth   float64   `json:"azimuth"`
	Elevation float64   `json:"elevation"`
	Time      time.Time `json:"time"`
	// Error is set when the last poll failed; the positions are then the
	// last good reading.
	Error string `json:"error,omitempty"`

	err error
}

func (s Status) AzimuthPosition() float64   { return s.Azimuth }
func (s Status) ElevationPosition() float64 { return s.Elevation }

type Server struct {
	dev     Device
	tles    TLESource
	metrics *metrics.Collector
	logger  *zap.Logger

	statusMu sync.RWMutex
	status   Status
	changed  chan struct{}
}

func NewServer(dev Device, tles TLESource, m *metrics.Collector, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		dev:     dev,
		tles:    tles,
		metrics: m,
		logger:  logger,
		changed: make(chan struct{}),
	}
}

// Status returns the latest status and a channel closed when it changes.
func (s *Server) Status() (Status, <-chan struct{}) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status, s.changed
}

func (s *Server) setStatus(status Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	close(s.changed)
	s.changed = make(chan struct{})
}

// do runs one device operation and records its outcome.
func (s *Server) do(op string, f func() error) error {
	start := time.Now()
	err := f()
	s.metrics.Observe(op, start, err)
	if err != nil {
		s.logger.Warn("rotator operation failed", zap.String("op", op), zap.String("kind", k3ng.KindOf(err).String()), zap.Error(err))
	}
	return err
}

func (s *Server) pollOnce() {
	var st rotator.Status
	err := s.do("poll", func() error {
		var err error
		st, err = s.dev.PollStatus()
		return err
	})
	now := time.Now()
	prev, _ := s.Status()
	next := Status{Azimuth: prev.Azimuth, Elevation: prev.Elevation, Time: now}
	if err != nil {
		next.Error, next.err = err.Error(), err
	} else {
		next.Azimuth, next.Elevation = st.AzimuthPosition(), st.ElevationPosition()
		s.metrics.SetStatus(st, now)
	}
	s.setStatus(next)
}

// PollLoop polls the rotator every interval until ctx is done.
func (s *Server) PollLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.pollOnce()
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Command is a client request received over the websocket or POSTed to
// /api/command.
type Command struct {
	Command   string    `json:"command"`
	Position  float64   `json:"position"`
	Direction string    `json:"direction"`
	NoradID   int       `json:"norad_id"`
	TLE       *k3ng.TLE `json:"tle"`
}

type CommandResult struct {
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

var errBadCommand = errors.New("bad command")

func (s *Server) handleCommand(ctx context.Context, msg Command) error {
	switch msg.Command {
	case "set_azimuth_position":
		return s.do("set azimuth", func() error { return s.dev.SetAzimuthPosition(msg.Position) })
	case "set_elevation_position":
		return s.do("set elevation", func() error { return s.dev.SetElevationPosition(msg.Position) })
	case "stop":
		return s.do("stop", s.dev.Stop)
	case "rotate":
		var f func() error
		switch msg.Direction {
		case "up":
			f = s.dev.RotateUp
		case "down":
			f = s.dev.RotateDown
		case "cw":
			f = s.dev.RotateCW
		case "ccw":
			f = s.dev.RotateCCW
		default:
			return fmt.Errorf("%w: unknown direction %q", errBadCommand, msg.Direction)
		}
		return s.do("rotate "+msg.Direction, f)
	case "park":
		return s.do("park", func() error {
			_, err := s.dev.Park()
			return err
		})
	case "load_tle":
		tle, err := s.resolveTLE(ctx, msg)
		if err != nil {
			return err
		}
		return s.do("load tle", func() error { return s.dev.LoadTLE(tle) })
	}
	return fmt.Errorf("%w: unknown command %q", errBadCommand, msg.Command)
}

func (s *Server) resolveTLE(ctx context.Context, msg Command) (k3ng.TLE, error) {
	if msg.TLE != nil {
		tle, err := k3ng.NewTLE(msg.TLE.Title, msg.TLE.Line1, msg.TLE.Line2)
		if err != nil {
			return k3ng.TLE{}, fmt.Errorf("%w: %v", errBadCommand, err)
		}
		return tle, nil
	}
	if msg.NoradID <= 0 {
		return k3ng.TLE{}, fmt.Errorf("%w: load_tle needs tle or norad_id", errBadCommand)
	}
	if s.tles == nil {
		return k3ng.TLE{}, fmt.Errorf("no ephemeris source configured")
	}
	return s.tles.Fetch(ctx, msg.NoradID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, _ := s.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("writing status", zap.Error(err))
	}
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var msg Command
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := CommandResult{Command: msg.Command}
	code := http.StatusOK
	if err := s.handleCommand(r.Context(), msg); err != nil {
		result.Error = err.Error()
		code = httpStatus(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(result)
}

func httpStatus(err error) int {
	if errors.Is(err, errBadCommand) {
		return http.StatusBadRequest
	}
	var e *k3ng.Error
	if !errors.As(err, &e) {
		return http.StatusBadGateway
	}
	switch e.Kind {
	case k3ng.InvalidArgument, k3ng.InvalidCommand:
		return http.StatusBadRequest
	case k3ng.NoResponse:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			result := CommandResult{Command: msg.Command}
			if err := s.handleCommand(ctx, msg); err != nil {
				result.Error = err.Error()
			}
			if err := send(result); err != nil {
				return
			}
		}
	}()

	for {
		status, changed := s.Status()
		if err := send(status); err != nil {
			s.logger.Debug("websocket closed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// Router serves the HTTP API, and static files from staticDir when set.
func (s *Server) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/command", s.CommandHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}
