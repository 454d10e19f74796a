package config

import (
	"fmt"
	"net/url"

	"github.com/w1xm/k3ng_interface/internal/maidenhead"
	"github.com/w1xm/k3ng_interface/k3ng"
	"github.com/w1xm/k3ng_interface/link"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// SERIAL
	// ------------------------------------------------------------

	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if cfg.Serial.Baud != link.Baud {
		return fmt.Errorf("serial.baud must be %d, got %d", link.Baud, cfg.Serial.Baud)
	}
	if cfg.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.read_timeout must be positive")
	}
	if cfg.Serial.InterByteTimeout <= 0 {
		return fmt.Errorf("serial.inter_byte_timeout must be positive")
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	t := cfg.Timing
	if t.EchoDrain < 0 || t.PostPrime < 0 || t.PostSave < 0 || t.PostCalibration < 0 {
		return fmt.Errorf("timing values must not be negative")
	}

	// ------------------------------------------------------------
	// STATION
	// ------------------------------------------------------------

	s := cfg.Station
	hasCoords := s.Latitude != nil || s.Longitude != nil
	if s.Grid != "" && hasCoords {
		return fmt.Errorf("station: set either grid or latitude/longitude, not both")
	}
	if s.Grid != "" && !maidenhead.Valid(s.Grid) {
		return fmt.Errorf("station.grid %q is not a %d character locator", s.Grid, maidenhead.Length)
	}
	if hasCoords {
		if s.Latitude == nil || s.Longitude == nil {
			return fmt.Errorf("station: latitude and longitude must be set together")
		}
		if _, err := maidenhead.Locator(*s.Latitude, *s.Longitude); err != nil {
			return fmt.Errorf("station: %w", err)
		}
	}
	if s.Park != nil {
		if err := s.Park.Validate(); err != nil {
			return fmt.Errorf("station.park: %w", err)
		}
	}
	if s.Autopark != nil && (*s.Autopark < 0 || *s.Autopark > k3ng.MaxAutoparkMinutes) {
		return fmt.Errorf("station.autopark must be 0 to %d minutes", k3ng.MaxAutoparkMinutes)
	}

	// ------------------------------------------------------------
	// EPHEMERIS
	// ------------------------------------------------------------

	if u, err := url.Parse(cfg.Ephemeris.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ephemeris.base_url %q is not an absolute URL", cfg.Ephemeris.BaseURL)
	}
	if cfg.Ephemeris.Timeout <= 0 {
		return fmt.Errorf("ephemeris.timeout must be positive")
	}

	// ------------------------------------------------------------
	// DAEMON / MQTT
	// ------------------------------------------------------------

	if cfg.Daemon.PollInterval <= 0 {
		return fmt.Errorf("daemon.poll_interval must be positive")
	}
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt.broker is set")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	return nil
}
