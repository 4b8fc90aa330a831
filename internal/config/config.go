// Package config defines the settings shared by every taskfarm command and the
// loaders that produce them.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/taskfarm/internal/domain/farm"
)

// Config represents the top-level configuration.
type Config struct {
	// Processes counts every participant, dispatcher included, so a run has
	// Processes-1 workers.
	Processes  int    `yaml:"processes" mapstructure:"processes"`
	Policy     string `yaml:"policy" mapstructure:"policy"`
	QueueOrder string `yaml:"queue_order" mapstructure:"queue_order"`
	LogLevel   string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Sequence  SequenceConfig  `yaml:"sequence" mapstructure:"sequence"`
	Workload  WorkloadConfig  `yaml:"workload" mapstructure:"workload"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// MetricsAddr serves Prometheus metrics and health probes. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	// DebugAddr serves the statsviz dashboard. Empty disables it.
	DebugAddr string `yaml:"debug_addr" mapstructure:"debug_addr"`
}

// SequenceConfig bounds the generated work items.
type SequenceConfig struct {
	Start float64 `yaml:"start" mapstructure:"start"`
	End   float64 `yaml:"end" mapstructure:"end"`
	Step  float64 `yaml:"step" mapstructure:"step"`
}

// WorkloadConfig selects the latency model of the work function.
type WorkloadConfig struct {
	Profile      string             `yaml:"profile" mapstructure:"profile"`
	SlowDelay    time.Duration      `yaml:"slow_delay" mapstructure:"slow_delay" validate:"gte=0"`
	FastDelay    time.Duration      `yaml:"fast_delay" mapstructure:"fast_delay" validate:"gte=0"`
	Distribution DistributionConfig `yaml:"distribution" mapstructure:"distribution"`
}

// DistributionConfig parameterizes the random profile. Values are milliseconds.
type DistributionConfig struct {
	Kind   string  `yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=linear powered multiplied poisson"`
	Min    float64 `yaml:"min" mapstructure:"min" validate:"gte=0"`
	Max    float64 `yaml:"max" mapstructure:"max" validate:"gtefield=Min"`
	Pow    int     `yaml:"pow" mapstructure:"pow"`
	N      int     `yaml:"n" mapstructure:"n"`
	Lambda float64 `yaml:"lambda" mapstructure:"lambda" validate:"gte=0"`
	Seed   uint64  `yaml:"seed" mapstructure:"seed"`
}

// TransportConfig configures the gRPC link between dispatcher and workers.
type TransportConfig struct {
	ListenAddr     string        `yaml:"listen_addr" mapstructure:"listen_addr"`
	DispatcherAddr string        `yaml:"dispatcher_addr" mapstructure:"dispatcher_addr"`
	DialTimeout    time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gte=0"`
	// SendRate caps dispatcher sends per second. Zero means unlimited.
	SendRate  float64 `yaml:"send_rate" mapstructure:"send_rate" validate:"gte=0"`
	SendBurst int     `yaml:"send_burst" mapstructure:"send_burst" validate:"gte=0"`
}

// StorageDriver names a run store backend.
type StorageDriver string

const (
	// StorageMemory keeps reports in process memory; they are lost on exit.
	StorageMemory StorageDriver = "memory"
	// StoragePostgres keeps reports in PostgreSQL at StorageConfig.DSN.
	StoragePostgres StorageDriver = "postgres"
)

// StorageConfig selects where run reports are kept.
type StorageConfig struct {
	Driver StorageDriver `yaml:"driver" mapstructure:"driver" validate:"oneof=memory postgres"`
	DSN    string        `yaml:"dsn" mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// EventsDriver names a run event sink.
type EventsDriver string

const (
	// EventsNone publishes nothing.
	EventsNone EventsDriver = "none"
	// EventsKafka publishes a RunCompleted event to EventsConfig.Topic after
	// each run is saved.
	EventsKafka EventsDriver = "kafka"
)

// EventsConfig selects where run events are announced.
type EventsConfig struct {
	Driver   EventsDriver `yaml:"driver" mapstructure:"driver" validate:"oneof=none kafka"`
	Brokers  []string     `yaml:"brokers" mapstructure:"brokers" validate:"required_if=Driver kafka"`
	Topic    string       `yaml:"topic" mapstructure:"topic" validate:"required_if=Driver kafka"`
	ClientID string       `yaml:"client_id" mapstructure:"client_id"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName      string  `yaml:"service_name" mapstructure:"service_name" validate:"required_if=Enabled true"`
	ExporterEndpoint string  `yaml:"exporter_endpoint" mapstructure:"exporter_endpoint" validate:"required_if=Enabled true"`
	SamplingRatio    float64 `yaml:"sampling_ratio" mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
}

// Default returns the settings used when nothing overrides them: one slow
// worker among three, evaluating 100 points.
func Default() Config {
	return Config{
		Processes:  4,
		Policy:     string(farm.PolicyDynamic),
		QueueOrder: string(farm.QueueOrderLIFO),
		LogLevel:   "info",
		Sequence:   SequenceConfig{Start: 0, End: 99, Step: 1},
		Workload: WorkloadConfig{
			Profile:   "first-slow",
			SlowDelay: time.Second,
			FastDelay: 100 * time.Millisecond,
			Distribution: DistributionConfig{
				Kind: "linear",
				Min:  0,
				Max:  1000,
			},
		},
		Transport: TransportConfig{
			ListenAddr:     "0.0.0.0:9090",
			DispatcherAddr: "localhost:9090",
			DialTimeout:    2 * time.Minute,
			SendBurst:      1,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Events: EventsConfig{
			Driver:   EventsNone,
			Brokers:  []string{"localhost:9092"},
			Topic:    "taskfarm.runs",
			ClientID: "taskfarm",
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "taskfarm",
			ExporterEndpoint: "localhost:4317",
			SamplingRatio:    0.05,
		},
	}
}

// Workers returns the number of worker processes.
func (c *Config) Workers() int { return c.Processes - 1 }

// Validate checks the configuration for values no run can use. Every problem
// found is reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Processes < 2 {
		errs = append(errs, fmt.Errorf("%w: processes must be at least 2, got %d", farm.ErrPrecondition, c.Processes))
	}
	if err := validateStruct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := farm.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := farm.ParseQueueOrder(c.QueueOrder); err != nil {
		errs = append(errs, err)
	}
	if _, err := farm.Generate(c.Sequence.Start, c.Sequence.End, c.Sequence.Step); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
