package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/logging"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Defaults returns a configuration with every optional field set.
func Defaults() Config {
	return Config{
		InstanceID:       "codescan",
		ShutdownTimeoutS: 5,
		StatsIntervalS:   30,
		Decoder:          "zxing",
		Log:              defaultLog(),
		Scanner: ScannerConfig{
			Layout:           geometry.DefaultLayout,
			Enhance:          enhance.DefaultParams(),
			ProcessTimeoutMS: 2000,
			EventQueue:       16,
			ErrorRate:        2,
			ErrorBurst:       5,
		},
		Capture: CaptureConfig{
			Source:           "file",
			File:             FileConfig{FPS: 30, Loop: true},
			Camera:           CameraConfig{Device: "/dev/video0", Width: 1920, Height: 1080, FPS: 30, Format: "BGRA"},
			MaxRetries:       5,
			InitialBackoffMS: 1000,
			MaxBackoffMS:     30000,
		},
		Emitters: EmittersConfig{
			Log:     true,
			Redis:   RedisConfig{Channel: "codescan:results"},
			Preview: PreviewConfig{EveryN: 30, MaxFiles: 100, Scale: 1},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Validate checks if the configuration is valid and fills zero values
func Validate(cfg *Config) error {
	d := Defaults()

	// Set defaults for zero values
	if cfg.InstanceID == "" {
		cfg.InstanceID = d.InstanceID
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = d.ShutdownTimeoutS
	}
	if cfg.Decoder == "" {
		cfg.Decoder = d.Decoder
	}
	if cfg.Scanner.Layout.Size <= 0 {
		cfg.Scanner.Layout = d.Scanner.Layout
	}
	if cfg.Scanner.Enhance == (enhance.Params{}) {
		cfg.Scanner.Enhance = d.Scanner.Enhance
	}
	if cfg.Scanner.ProcessTimeoutMS <= 0 {
		cfg.Scanner.ProcessTimeoutMS = d.Scanner.ProcessTimeoutMS
	}
	if cfg.Capture.Source == "" {
		cfg.Capture.Source = d.Capture.Source
	}
	if cfg.Capture.File.FPS <= 0 {
		cfg.Capture.File.FPS = d.Capture.File.FPS
	}
	if cfg.Emitters.Redis.Channel == "" {
		cfg.Emitters.Redis.Channel = d.Emitters.Redis.Channel
	}
	if cfg.Emitters.MQTT.Topic == "" {
		cfg.Emitters.MQTT.Topic = "codescan/" + cfg.InstanceID
	}
	if cfg.Emitters.Preview.EveryN <= 0 {
		cfg.Emitters.Preview.EveryN = d.Emitters.Preview.EveryN
	}
	if cfg.Emitters.Preview.Scale <= 0 {
		cfg.Emitters.Preview.Scale = 1
	}

	if err := validate.Struct(cfg); err != nil {
		return describe(err)
	}

	// Viewport may be zero (frames skipped until set), but not half-set
	vp := cfg.Scanner.Viewport
	if (vp.Width == 0) != (vp.Height == 0) {
		return fmt.Errorf("scanner.viewport: width and height must both be set, got %vx%v", vp.Width, vp.Height)
	}

	// Validate variant order labels, no duplicates
	seen := make(map[variant.Step]bool, len(cfg.Scanner.Order))
	for _, label := range cfg.Scanner.Order {
		st, err := variant.ParseStep(label)
		if err != nil {
			return fmt.Errorf("scanner.order: %w", err)
		}
		if seen[st] {
			return fmt.Errorf("scanner.order: duplicate variant %q", label)
		}
		seen[st] = true
	}

	// Validate capture source settings
	switch cfg.Capture.Source {
	case "file":
		if cfg.Capture.File.Dir == "" {
			return fmt.Errorf("capture.file.dir is required for source 'file'")
		}
	case "camera":
		if cfg.Capture.Camera.Device == "" {
			return fmt.Errorf("capture.camera.device is required for source 'camera'")
		}
	}
	if cfg.Capture.MaxBackoffMS > 0 && cfg.Capture.MaxBackoffMS < cfg.Capture.InitialBackoffMS {
		return fmt.Errorf("capture.max_backoff_ms (%d) < capture.initial_backoff_ms (%d)",
			cfg.Capture.MaxBackoffMS, cfg.Capture.InitialBackoffMS)
	}

	return nil
}

// describe flattens validator errors into one message naming yaml paths.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath turns "Config.scanner.layout.size" into "scanner.layout.size".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}

func defaultLog() logging.Options {
	return logging.Options{Level: "info", Format: "json"}
}
