package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/howeyc/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watch reloads path whenever it changes and hands each valid configuration to
// apply. Invalid files are logged and skipped; the previous configuration stays
// in effect. Blocks until ctx is done.
//
// The parent directory is watched so editors that save by rename still trigger.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	if err := w.Watch(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("config: watching for changes", "path", abs)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev := <-w.Event:
			if ev == nil || filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.IsModify() && !ev.IsCreate() && !ev.IsRename() {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			reload = timer.C

		case err := <-w.Error:
			slog.Warn("config: watcher error", "error", err)

		case <-reload:
			reload = nil
			cfg, err := Load(abs)
			if err != nil {
				slog.Warn("config: reload rejected, keeping current configuration", "path", abs, "error", err)
				continue
			}
			slog.Info("config: reloaded", "path", abs)
			apply(cfg)
		}
	}
}

// Changes compares two configurations. live lists changes that can be applied
// to a running scanner (viewport); restart lists sections whose changes only
// take effect after a restart.
func Changes(old, cur *Config) (live, restart []string) {
	if old.Scanner.Viewport != cur.Scanner.Viewport {
		live = append(live, fmt.Sprintf("scanner.viewport: %vx%v → %vx%v",
			old.Scanner.Viewport.Width, old.Scanner.Viewport.Height,
			cur.Scanner.Viewport.Width, cur.Scanner.Viewport.Height))
	}

	oldScanner, curScanner := old.Scanner, cur.Scanner
	oldScanner.Viewport, curScanner.Viewport = ViewportConfig{}, ViewportConfig{}
	sections := []struct {
		name     string
		old, cur interface{}
	}{
		{"scanner", oldScanner, curScanner},
		{"decoder", old.Decoder, cur.Decoder},
		{"capture", old.Capture, cur.Capture},
		{"emitters", old.Emitters, cur.Emitters},
		{"http", old.HTTP, cur.HTTP},
		{"log", old.Log, cur.Log},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.cur) {
			restart = append(restart, s.name)
		}
	}
	return live, restart
}
