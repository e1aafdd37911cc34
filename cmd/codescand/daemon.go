package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	codescan "github.com/e7canasta/orion-codescan"
	"github.com/e7canasta/orion-codescan/decoder"
	"github.com/e7canasta/orion-codescan/internal/capture"
	"github.com/e7canasta/orion-codescan/internal/capture/camera"
	"github.com/e7canasta/orion-codescan/internal/config"
	"github.com/e7canasta/orion-codescan/internal/emitter"
	"github.com/e7canasta/orion-codescan/internal/frame"
	"github.com/e7canasta/orion-codescan/internal/httpapi"
)

// daemon wires capture → scanner → emitters and the HTTP API.
type daemon struct {
	configPath string

	mu  sync.Mutex
	cfg *config.Config

	scanner codescan.Scanner
	sinks   emitter.Fanout
	runner  *capture.Runner
	api     *httpapi.Server

	runCtx  context.Context
	started time.Time
}

func newDaemon(ctx context.Context, configPath string, cfg *config.Config) (*daemon, error) {
	d := &daemon{configPath: configPath, cfg: cfg, runCtx: ctx, started: time.Now()}

	dec, err := decoder.New(cfg.Decoder)
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, err
	}

	// The daemon forwards to d.sinks, which is complete before Start.
	d.scanner, err = codescan.New(sc, dec, d)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	if err := d.buildSinks(ctx); err != nil {
		d.sinks.Close()
		return nil, err
	}

	src, err := newSource(cfg.Capture)
	if err != nil {
		d.sinks.Close()
		return nil, err
	}
	d.runner = capture.NewRunner(src, capture.RestartConfig{
		MaxRetries:     cfg.Capture.MaxRetries,
		InitialBackoff: time.Duration(cfg.Capture.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Capture.MaxBackoffMS) * time.Millisecond,
	}, d.reportCapture)

	if cfg.HTTP.Addr != "" {
		d.api = httpapi.New(d.scanner, httpapi.Options{
			Addr:          cfg.HTTP.Addr,
			Instance:      cfg.InstanceID,
			Capture:       d.runner.Stats,
			PreviewScale:  cfg.Emitters.Preview.Scale,
			PreviewRotate: cfg.Emitters.Preview.Rotate,
		})
		d.sinks = append(d.sinks, d.api)
	}

	slog.Info("codescand: initialized",
		"instance_id", cfg.InstanceID,
		"decoder", cfg.Decoder,
		"source", src.Name(),
		"sinks", len(d.sinks),
		"viewport", fmt.Sprintf("%vx%v", cfg.Scanner.Viewport.Width, cfg.Scanner.Viewport.Height),
	)
	return d, nil
}

func (d *daemon) buildSinks(ctx context.Context) error {
	cfg := d.cfg
	osFs := afero.NewOsFs()

	if cfg.Emitters.Log {
		d.sinks = append(d.sinks, emitter.NewLogSink(nil))
	}
	if path := cfg.Emitters.Msgpack.Path; path != "" {
		m, err := emitter.OpenMsgpackStream(osFs, path, cfg.InstanceID)
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, m)
	}
	if r := cfg.Emitters.Redis; r.Addr != "" {
		client, err := emitter.NewRedisClient(ctx, emitter.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB})
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, emitter.NewRedisEmitter(client, r.Channel, cfg.InstanceID))
	}
	if m := cfg.Emitters.MQTT; m.Broker != "" {
		opts := emitter.MQTTOptions{
			Broker:    m.Broker,
			ClientID:  cfg.InstanceID,
			Topic:     m.Topic,
			ResultQoS: m.ResultQoS,
			ErrorQoS:  m.ErrorQoS,
		}
		client, err := emitter.ConnectMQTT(opts)
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, emitter.NewMQTTEmitter(client, opts, cfg.InstanceID))
	}
	if p := cfg.Emitters.Preview; p.Dir != "" {
		saver, err := emitter.NewPreviewSaver(osFs, emitter.PreviewOptions{
			Dir:      p.Dir,
			EveryN:   p.EveryN,
			MaxFiles: p.MaxFiles,
			Scale:    p.Scale,
			Rotate:   p.Rotate,
		})
		if err != nil {
			return err
		}
		d.sinks = append(d.sinks, saver)
	}
	return nil
}

func newSource(cfg config.CaptureConfig) (capture.Source, error) {
	switch cfg.Source {
	case "camera":
		format, err := frame.ParsePixelFormat(cfg.Camera.Format)
		if err != nil {
			return nil, err
		}
		return camera.New(camera.Options{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
			Format: format,
		}), nil
	case "file":
		return capture.NewFileSource(afero.NewOsFs(), capture.FileOptions{
			Dir:  cfg.File.Dir,
			FPS:  cfg.File.FPS,
			Loop: cfg.File.Loop,
		}), nil
	}
	return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
}

// OnPreview implements codescan.Sink.
func (d *daemon) OnPreview(p codescan.Preview) { d.sinks.OnPreview(p) }

// OnResult implements codescan.Sink.
func (d *daemon) OnResult(r codescan.Result) { d.sinks.OnResult(r) }

// OnError implements codescan.Sink.
func (d *daemon) OnError(e codescan.ErrorReport) { d.sinks.OnError(e) }

func (d *daemon) reportCapture(title, message string) {
	if !d.scanner.Report(title, message) {
		slog.Warn("codescand: capture error while paused", "title", title, "message", message)
	}
}

// Run starts the scanner and blocks until ctx is done or a component fails.
func (d *daemon) Run(ctx context.Context) error {
	if err := d.scanner.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.runner.Run(gctx, d.scanner.Submit)
	})
	if d.api != nil {
		g.Go(func() error {
			return d.api.ListenAndServe(gctx)
		})
	}
	if interval := d.cfg.StatsInterval(); interval > 0 {
		g.Go(func() error {
			d.reportStats(gctx, interval)
			return nil
		})
	}
	if d.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, d.configPath, d.applyConfig)
		})
	}

	return g.Wait()
}

// Pause stops scanning; capture keeps running and its frames are counted as
// not running. Resume opens a fresh session.
func (d *daemon) Pause() error {
	slog.Info("codescand: pausing scanner")
	return d.scanner.Stop()
}

// Resume restarts scanning after Pause.
func (d *daemon) Resume() error {
	slog.Info("codescand: resuming scanner")
	err := d.scanner.Start(d.runCtx)
	if errors.Is(err, codescan.ErrAlreadyStarted) {
		return nil
	}
	return err
}

// applyConfig hot-applies a reloaded configuration. Only the viewport is
// live; other sections are logged as requiring restart.
func (d *daemon) applyConfig(cur *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()

	live, restart := config.Changes(d.cfg, cur)
	if len(live) > 0 {
		d.cfg.Scanner.Viewport = cur.Scanner.Viewport
		d.scanner.SetViewport(cur.Viewport())
		slog.Info("codescand: config applied", "changes", live)
	}
	for _, section := range restart {
		slog.Warn("codescand: config change requires restart (not applied)", "section", section)
	}
}

func (d *daemon) reportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := d.scanner.Stats()
			cs := d.runner.Stats()
			var dropRate float64
			if st.Submitted > 0 {
				dropRate = float64(st.DroppedBusy) / float64(st.Submitted)
			}
			slog.Info("codescand: stats",
				"uptime", time.Since(d.started).Round(time.Second),
				"state", st.State,
				"captured", cs.Captured,
				"submitted", st.Submitted,
				"admitted", st.Admitted,
				"dropped_busy", st.DroppedBusy,
				"drop_rate", fmt.Sprintf("%.1f%%", dropRate*100),
				"decoded", st.Decoded,
				"no_match", st.NoMatch,
				"decode_errors", st.DecodeErrors,
				"stalls", st.Stalls,
				"last_cycle", st.LastCycle,
				"capture_fps", fmt.Sprintf("%.1f", cs.Rate.FPSMean),
				"capture_stable", cs.Rate.Stable,
				"capture_restarts", cs.Restarts,
			)
		}
	}
}

// Shutdown stops the scanner and closes emitters.
func (d *daemon) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		if err := d.scanner.Stop(); err != nil {
			done <- err
			return
		}
		done <- d.sinks.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
