package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ControllerConfig holds the settings of the switch-controller runtime.
type ControllerConfig struct {
	ListenAddr       string `yaml:"listen_addr"`
	PollInterval     string `yaml:"poll_interval"`
	HistoryInterval  string `yaml:"history_interval"`
	HandshakeTimeout string `yaml:"handshake_timeout"`
	SummaryCapacity  int    `yaml:"summary_capacity"`
	// MACTableCapacity bounds each switch's learning table. 0 means unbounded.
	MACTableCapacity int `yaml:"mac_table_capacity"`
	// UnicastKnownDestinations sends packets for learned destinations out of
	// the learned port instead of NORMAL. Off by default so that every packet
	// keeps being observed the same way.
	UnicastKnownDestinations bool `yaml:"unicast_known_destinations"`
}

// APIConfig holds the query surface listeners.
type APIConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`
}

// ProbeConfig holds the NATS settings used to publish packet summaries.
type ProbeConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection settings for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GobConfig holds the settings for the gob file writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// SQLiteConfig holds the settings for the SQLite writer.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// WriterDef defines a single export writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
	SQLite           SQLiteConfig     `yaml:"sqlite"`
}

// ExportConfig lists the snapshot writers.
type ExportConfig struct {
	Writers []WriterDef `yaml:"writers"`
}

// CaptureConfig enables recording of packet-in frames to pcap files.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	BufferSize int    `yaml:"buffer_size"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	API        APIConfig        `yaml:"api"`
	Probe      ProbeConfig      `yaml:"probe"`
	Export     ExportConfig     `yaml:"export"`
	Capture    CaptureConfig    `yaml:"capture"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file, fills in defaults and
// validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config YAML")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Controller.ListenAddr == "" {
		c.Controller.ListenAddr = ":6653"
	}
	if c.Controller.PollInterval == "" {
		c.Controller.PollInterval = "10s"
	}
	if c.Controller.HistoryInterval == "" {
		c.Controller.HistoryInterval = "10s"
	}
	if c.Controller.HandshakeTimeout == "" {
		c.Controller.HandshakeTimeout = "3s"
	}
	if c.Controller.SummaryCapacity == 0 {
		c.Controller.SummaryCapacity = 1000
	}
	if c.API.HttpListenAddr == "" {
		c.API.HttpListenAddr = ":8080"
	}
	if c.Probe.NATSURL == "" {
		c.Probe.NATSURL = "nats://127.0.0.1:4222"
	}
	if c.Probe.Subject == "" {
		c.Probe.Subject = "ofspectra.packets.summary"
	}
	if c.Capture.Path == "" {
		c.Capture.Path = "./data/capture"
	}
	if c.Capture.BufferSize == 0 {
		c.Capture.BufferSize = 10000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"controller.poll_interval":     c.Controller.PollInterval,
		"controller.history_interval":  c.Controller.HistoryInterval,
		"controller.handshake_timeout": c.Controller.HandshakeTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
		if d <= 0 {
			return errors.Errorf("%s must be a positive duration", name)
		}
	}
	if c.Controller.SummaryCapacity < 0 {
		return errors.New("controller.summary_capacity must not be negative")
	}
	if c.Controller.MACTableCapacity < 0 {
		return errors.New("controller.mac_table_capacity must not be negative")
	}
	for i, w := range c.Export.Writers {
		if !w.Enabled {
			continue
		}
		switch w.Type {
		case "gob", "clickhouse", "sqlite":
		default:
			return errors.Errorf("export.writers[%d]: unknown writer type '%s'", i, w.Type)
		}
		if _, err := time.ParseDuration(w.SnapshotInterval); err != nil {
			return errors.Wrapf(err, "export.writers[%d]: invalid snapshot_interval", i)
		}
	}
	if c.Capture.BufferSize < 0 {
		return errors.New("capture.buffer_size must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "invalid log.level")
	}
	return nil
}

// PollDuration returns the parsed statistics polling interval.
func (c *ControllerConfig) PollDuration() time.Duration {
	return mustDuration(c.PollInterval)
}

// HistoryDuration returns the parsed history sampling interval.
func (c *ControllerConfig) HistoryDuration() time.Duration {
	return mustDuration(c.HistoryInterval)
}

// HandshakeDuration returns the parsed OpenFlow handshake timeout.
func (c *ControllerConfig) HandshakeDuration() time.Duration {
	return mustDuration(c.HandshakeTimeout)
}

// mustDuration is only used on values already checked by Validate.
func mustDuration(v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	return d
}

// ConfigureLogger applies the log section to the standard logrus logger.
func (l LogConfig) ConfigureLogger() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	switch l.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("unknown log format '%s'", l.Format)
	}
	return nil
}
