package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CODESCAN_"

// LoadDotEnv seeds the process environment from a .env file. A missing file is
// not an error; variables already set are not overwritten.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides configuration values from CODESCAN_* variables.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("INSTANCE_ID", &cfg.InstanceID)
	str("DECODER", &cfg.Decoder)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("CAPTURE_SOURCE", &cfg.Capture.Source)
	str("CAPTURE_DIR", &cfg.Capture.File.Dir)
	str("CAMERA_DEVICE", &cfg.Capture.Camera.Device)
	str("REDIS_ADDR", &cfg.Emitters.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Emitters.Redis.Password)
	str("REDIS_CHANNEL", &cfg.Emitters.Redis.Channel)
	str("MQTT_BROKER", &cfg.Emitters.MQTT.Broker)
	str("MSGPACK_PATH", &cfg.Emitters.Msgpack.Path)
	str("PREVIEW_DIR", &cfg.Emitters.Preview.Dir)

	if err := num("REDIS_DB", &cfg.Emitters.Redis.DB); err != nil {
		return err
	}
	if err := num("PROCESS_TIMEOUT_MS", &cfg.Scanner.ProcessTimeoutMS); err != nil {
		return err
	}

	if v, ok := lookup(EnvPrefix + "VIEWPORT"); ok && v != "" {
		w, h, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("%sVIEWPORT: %w", EnvPrefix, err)
		}
		cfg.Scanner.Viewport = ViewportConfig{Width: w, Height: h}
	}
	return nil
}

// ParseSize parses "WIDTHxHEIGHT", e.g. "393x852".
func ParseSize(s string) (float64, float64, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.ParseFloat(ws, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.ParseFloat(hs, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("size %q: negative dimension", s)
	}
	return w, h, nil
}
