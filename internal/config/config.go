// Package config loads the YAML configuration shared by the command line
// tool and the daemon.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/w1xm/k3ng_interface/k3ng"
	"github.com/w1xm/k3ng_interface/link"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Serial    SerialConfig    `yaml:"serial"`
	Timing    TimingConfig    `yaml:"timing"`
	Station   StationConfig   `yaml:"station"`
	Ephemeris EphemerisConfig `yaml:"ephemeris"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Influx    InfluxConfig    `yaml:"influx"`
}

// ---- SERIAL ----

type SerialConfig struct {
	// Port is a device name such as "ttyACM0" or an absolute path.
	Port             string        `yaml:"port"`
	Baud             int           `yaml:"baud"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	InterByteTimeout time.Duration `yaml:"inter_byte_timeout"`
}

// ---- TIMING ----

type TimingConfig struct {
	EchoDrain       time.Duration `yaml:"echo_drain"`
	PostPrime       time.Duration `yaml:"post_prime"`
	PostSave        time.Duration `yaml:"post_save"`
	PostCalibration time.Duration `yaml:"post_calibration"`
}

// ---- STATION ----

// StationConfig locates the station either by grid square or by decimal
// coordinates, never both.
type StationConfig struct {
	Grid      string   `yaml:"grid"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`

	Park *k3ng.ParkPosition `yaml:"park"`
	// Autopark in minutes; nil leaves the controller setting alone and 0
	// disables it.
	Autopark *int `yaml:"autopark"`
}

// ---- EPHEMERIS ----

type EphemerisConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ---- DAEMON ----

type DaemonConfig struct {
	HTTPAddr     string        `yaml:"http_addr"`
	RotctldAddr  string        `yaml:"rotctld_addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ---- MQTT ----

// MQTTConfig is optional; an empty broker disables publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// ---- INFLUX ----

type InfluxConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Default returns the configuration used for any field a file leaves out.
func Default() *Config {
	lc := link.DefaultConfig("")
	t := k3ng.DefaultTiming()
	return &Config{
		LogLevel: "info",
		Serial: SerialConfig{
			Port:             "ttyACM0",
			Baud:             lc.Baud,
			ReadTimeout:      lc.ReadTimeout,
			InterByteTimeout: lc.InterByteTimeout,
		},
		Timing: TimingConfig{
			EchoDrain:       lc.EchoDrain,
			PostPrime:       t.PostPrime,
			PostSave:        t.PostSave,
			PostCalibration: t.PostCalibration,
		},
		Ephemeris: EphemerisConfig{
			BaseURL: "https://db.satnogs.org",
			Timeout: 10 * time.Second,
		},
		Daemon: DaemonConfig{
			HTTPAddr:     ":8502",
			RotctldAddr:  ":4533",
			PollInterval: 500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID: "k3ngd",
			Topic:    "k3ng/status",
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

// Link returns the transport settings.
func (c *Config) Link() link.Config {
	return link.Config{
		Path:             link.ResolvePath(c.Serial.Port),
		Baud:             c.Serial.Baud,
		ReadTimeout:      c.Serial.ReadTimeout,
		InterByteTimeout: c.Serial.InterByteTimeout,
		EchoDrain:        c.Timing.EchoDrain,
	}
}

// K3NG returns the protocol timing contracts.
func (c *Config) K3NG() k3ng.Timing {
	return k3ng.Timing{
		PostPrime:       c.Timing.PostPrime,
		PostSave:        c.Timing.PostSave,
		PostCalibration: c.Timing.PostCalibration,
	}
}
