// Package config loads bolson's configuration from an optional YAML file
// with BOLSON_*-prefixed environment-variable overrides applied after
// load, then fills in derived defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// UnexpectedFieldBehavior controls how the reference CPU parser reacts to
// JSON fields absent from the configured schema.
type UnexpectedFieldBehavior string

const (
	FieldIgnore UnexpectedFieldBehavior = "ignore"
	FieldError  UnexpectedFieldBehavior = "error"
	FieldInfer  UnexpectedFieldBehavior = "infer"
)

// Framing selects the wire dialect spoken by the JSON TCP source.
type Framing string

const (
	FramingRaw     Framing = "raw"
	FramingZMQPush Framing = "zmq-push"
)

// Config is bolson's top-level configuration, covering every tunable
// exposed to operators across the pipeline's external interfaces.
type Config struct {
	Schema   []SchemaColumn `yaml:"schema"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Convert  ConvertConfig  `yaml:"convert"`
	Publish  PublishConfig  `yaml:"publish"`
	Output   OutputConfig   `yaml:"output"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ReceiverConfig controls the TCP JSON source and the buffer pool it fills.
type ReceiverConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	Framing        Framing `yaml:"framing"`
	SeqStart       uint64  `yaml:"seqStart"`
	NumBuffers     int     `yaml:"numBuffers"`
	BufferCapacity int     `yaml:"bufferCapacity"`
	PollIntervalUs int     `yaml:"pollIntervalUs"`
}

// ConvertConfig controls the converter worker pool and the reference CPU
// parser's options.
type ConvertConfig struct {
	NumWorkers              int                     `yaml:"numWorkers"`
	MaxIPCSize              int                     `yaml:"maxIpcSize"`
	SizeHintFraction        float64                 `yaml:"sizeHintFraction"`
	SeqColumn               bool                    `yaml:"seqColumn"`
	SeqColumnName           string                  `yaml:"seqColumnName"`
	UnexpectedFieldBehavior UnexpectedFieldBehavior `yaml:"unexpectedFieldBehavior"`
	BlockSize               int                     `yaml:"blockSize"`
	UseThreads              bool                    `yaml:"useThreads"`
	NeedsExclusiveAccess    bool                    `yaml:"needsExclusiveAccess"`
}

// PublishConfig controls the Pulsar producer.
type PublishConfig struct {
	URL         string        `yaml:"url"`
	Topic       string        `yaml:"topic"`
	Tenant      string        `yaml:"tenant"`
	Namespace   string        `yaml:"namespace"`
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

// OutputConfig controls statistics rendering and optional persistence.
type OutputConfig struct {
	Succinct    bool   `yaml:"succinct"`
	LatencyFile string `yaml:"latencyFile"`
	MetricsFile string `yaml:"metricsFile"`
}

// AdminConfig controls the optional operational HTTP surface (metrics,
// health, stats).
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchemaColumn describes one field of the user-configured data schema
// parsed by the reference CPU parser.
type SchemaColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load reads a YAML config file, if path is non-empty, applies environment
// overrides, and fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	applyDerivedDefaults(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Schema: []SchemaColumn{
			{Name: "v", Type: "list<int64>"},
		},
		Receiver: ReceiverConfig{
			Host:           "0.0.0.0",
			Port:           12345,
			Framing:        FramingRaw,
			SeqStart:       0,
			BufferCapacity: 8 * 1024 * 1024,
			PollIntervalUs: 10_000,
		},
		Convert: ConvertConfig{
			NumWorkers:              1,
			MaxIPCSize:              512 * 1024,
			SizeHintFraction:        0.9,
			SeqColumnName:           "bolson_seq",
			UnexpectedFieldBehavior: FieldIgnore,
			BlockSize:               1 << 20,
		},
		Publish: PublishConfig{
			URL:         "pulsar://localhost:6650",
			Topic:       "bolson",
			SendTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    ":8088",
		},
	}
}

// applyDerivedDefaults fills in values that depend on other fields, per
// NumBuffers defaults to max(NumWorkers+1, 2).
func applyDerivedDefaults(cfg *Config) {
	if cfg.Convert.NumWorkers <= 0 {
		cfg.Convert.NumWorkers = 1
	}
	if cfg.Receiver.NumBuffers <= 0 {
		min := cfg.Convert.NumWorkers + 1
		if min < 2 {
			min = 2
		}
		cfg.Receiver.NumBuffers = min
	}
	if cfg.Convert.SeqColumnName == "" {
		cfg.Convert.SeqColumnName = "bolson_seq"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOLSON_RECEIVER_HOST"); v != "" {
		cfg.Receiver.Host = v
	}
	if v := os.Getenv("BOLSON_RECEIVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Receiver.Port = p
		}
	}
	if v := os.Getenv("BOLSON_RECEIVER_SEQ_START"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Receiver.SeqStart = p
		}
	}
	if v := os.Getenv("BOLSON_CONVERT_NUM_WORKERS"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Convert.NumWorkers = p
		}
	}
	if v := os.Getenv("BOLSON_CONVERT_MAX_IPC_SIZE"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Convert.MaxIPCSize = p
		}
	}
	if v := os.Getenv("BOLSON_CONVERT_SEQ_COLUMN"); v != "" {
		if p, err := strconv.ParseBool(v); err == nil {
			cfg.Convert.SeqColumn = p
		}
	}
	if v := os.Getenv("BOLSON_PUBLISH_URL"); v != "" {
		cfg.Publish.URL = v
	}
	if v := os.Getenv("BOLSON_PUBLISH_TOPIC"); v != "" {
		cfg.Publish.Topic = v
	}
	if v := os.Getenv("BOLSON_OUTPUT_SUCCINCT"); v != "" {
		if p, err := strconv.ParseBool(v); err == nil {
			cfg.Output.Succinct = p
		}
	}
	if v := os.Getenv("BOLSON_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BOLSON_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BOLSON_ADMIN_ADDR"); v != "" {
		cfg.Admin.Addr = v
		cfg.Admin.Enabled = true
	}
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c ReceiverConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalUs) * time.Microsecond
}
