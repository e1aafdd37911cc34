package config

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/logging"
	"github.com/e7canasta/orion-codescan/internal/scheduler"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

// Config represents the complete codescand configuration
type Config struct {
	InstanceID       string          `yaml:"instance_id" validate:"required,hostname_rfc1123"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s" validate:"gte=0"` // default: 5
	StatsIntervalS   int             `yaml:"stats_interval_s" validate:"gte=0"`   // periodic stats log (default: 30)
	Decoder          string          `yaml:"decoder" validate:"omitempty,oneof=zxing goqr chain"`
	Log              logging.Options `yaml:"log"`
	Scanner          ScannerConfig   `yaml:"scanner"`
	Capture          CaptureConfig   `yaml:"capture"`
	Emitters         EmittersConfig  `yaml:"emitters"`
	HTTP             HTTPConfig      `yaml:"http"`
}

// ScannerConfig contains pipeline settings
type ScannerConfig struct {
	Viewport         ViewportConfig  `yaml:"viewport"`
	Layout           geometry.Layout `yaml:"layout"`
	Enhance          enhance.Params  `yaml:"enhance"`
	Order            []string        `yaml:"order"` // variant labels, e.g. "left invert"
	ProcessTimeoutMS int             `yaml:"process_timeout_ms" validate:"gte=0"`
	EventQueue       int             `yaml:"event_queue" validate:"gte=0"`
	ErrorRate        float64         `yaml:"error_rate" validate:"gte=0"`
	ErrorBurst       int             `yaml:"error_burst" validate:"gte=0"`
	DisablePreview   bool            `yaml:"disable_preview"`
}

// ViewportConfig is the on-screen preview size in logical units
type ViewportConfig struct {
	Width  float64 `yaml:"width" validate:"gte=0"`
	Height float64 `yaml:"height" validate:"gte=0"`
}

// CaptureConfig selects and tunes the frame source
type CaptureConfig struct {
	Source           string       `yaml:"source" validate:"required,oneof=file camera"`
	File             FileConfig   `yaml:"file"`
	Camera           CameraConfig `yaml:"camera"`
	MaxRetries       int          `yaml:"max_retries" validate:"gte=0"`        // default: 5
	InitialBackoffMS int          `yaml:"initial_backoff_ms" validate:"gte=0"` // default: 1000
	MaxBackoffMS     int          `yaml:"max_backoff_ms" validate:"gte=0"`     // default: 30000
}

// FileConfig replays still images as a camera
type FileConfig struct {
	Dir  string  `yaml:"dir"`
	FPS  float64 `yaml:"fps" validate:"gte=0"` // default: 30
	Loop bool    `yaml:"loop"`
}

// CameraConfig contains live camera settings
type CameraConfig struct {
	Device string `yaml:"device"` // e.g. /dev/video0
	Width  int    `yaml:"width" validate:"gte=0"`
	Height int    `yaml:"height" validate:"gte=0"`
	FPS    int    `yaml:"fps" validate:"gte=0"`
	Format string `yaml:"format" validate:"omitempty,oneof=BGRA RGBA RGB GRAY8"`
}

// EmittersConfig lists result sinks
type EmittersConfig struct {
	Log     bool          `yaml:"log"`
	Msgpack MsgpackConfig `yaml:"msgpack"`
	Redis   RedisConfig   `yaml:"redis"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Preview PreviewConfig `yaml:"preview"`
}

// MsgpackConfig streams length-prefixed msgpack events to a file or FIFO
type MsgpackConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig publishes results on a pub/sub channel
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Channel  string `yaml:"channel"`
}

// MQTTConfig publishes results to {topic}/results and errors to {topic}/errors
type MQTTConfig struct {
	Broker    string `yaml:"broker" validate:"omitempty,hostname_port"` // host:port
	Topic     string `yaml:"topic"`                                     // default: codescan/{instance_id}
	ResultQoS byte   `yaml:"result_qos" validate:"lte=2"`
	ErrorQoS  byte   `yaml:"error_qos" validate:"lte=2"`
}

// PreviewConfig saves debug previews to disk
type PreviewConfig struct {
	Dir      string `yaml:"dir"`
	EveryN   int    `yaml:"every_n" validate:"gte=0"` // save one preview in N (default: 30)
	MaxFiles int    `yaml:"max_files" validate:"gte=0"`
	Scale    int    `yaml:"scale" validate:"gte=0"` // upscale factor for viewing (default: 1)
	Rotate   bool   `yaml:"rotate"`                 // turn into portrait (display) orientation
}

// HTTPConfig contains the control/diagnostics API settings
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads, overrides from the environment and validates a YAML configuration file
func Load(path string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS is Load over an arbitrary filesystem
func LoadFS(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Viewport converts the configured viewport.
func (c *Config) Viewport() geometry.Viewport {
	return geometry.NewViewport(c.Scanner.Viewport.Width, c.Scanner.Viewport.Height)
}

// SchedulerConfig converts the scanner section.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	order := make([]variant.Step, 0, len(c.Scanner.Order))
	for _, label := range c.Scanner.Order {
		st, err := variant.ParseStep(label)
		if err != nil {
			return scheduler.Config{}, err
		}
		order = append(order, st)
	}

	return scheduler.Config{
		Layout:         c.Scanner.Layout,
		Enhance:        c.Scanner.Enhance,
		Order:          order,
		Viewport:       c.Viewport(),
		ProcessTimeout: time.Duration(c.Scanner.ProcessTimeoutMS) * time.Millisecond,
		EventQueue:     c.Scanner.EventQueue,
		ErrorRate:      c.Scanner.ErrorRate,
		ErrorBurst:     c.Scanner.ErrorBurst,
		DisablePreview: c.Scanner.DisablePreview,
	}, nil
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// StatsInterval returns the periodic stats log interval.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}
