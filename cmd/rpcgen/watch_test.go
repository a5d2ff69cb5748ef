package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/ngAnzar/rpc/adapters/metrics"
	"github.com/ngAnzar/rpc/config"
	"github.com/ngAnzar/rpc/core/events"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

func newTestWatcher(t *testing.T, stdout *bytes.Buffer) *watcher {
	t.Helper()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { fsw.Close() })

	return &watcher{
		c:       &cli{cfgFile: filepath.Join(t.TempDir(), "none.yaml"), stdout: stdout, stderr: stdout},
		flags:   &buildFlags{},
		metrics: metrics.New("test"),
		bus:     events.NewBus(zerolog.Nop()),
		fs:      fsw,
		dirs:    make(map[string]bool),
		logger:  zerolog.Nop(),
	}
}

// value reads a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestWatcher_Run(t *testing.T) {
	src := writeTree(t, map[string]string{"schema/user.json": userDoc})
	var stdout bytes.Buffer
	w := newTestWatcher(t, &stdout)
	w.subscribe(make(chan struct{}, 1))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	cfg.Inputs = []string{filepath.Join(src, "schema", "*.json")}
	cfg.Output.Path = t.TempDir()

	w.run(context.Background(), cfg)

	if !strings.Contains(stdout.String(), "2 files written") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !w.dirs[filepath.Join(src, "schema")] {
		t.Errorf("schema dir not watched: %v", w.dirs)
	}
	if got := value(t, w.metrics.RunsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := value(t, w.metrics.RunsActive); got != 0 {
		t.Errorf("active runs = %v, want 0", got)
	}

	// a broken input is reported and counted, not fatal
	cfg.Inputs = []string{filepath.Join(src, "schema", "missing.json")}
	w.run(context.Background(), cfg)

	if !strings.Contains(stdout.String(), crossMark) {
		t.Errorf("stdout = %q", stdout.String())
	}
	if got := value(t, w.metrics.RunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

func TestWatcher_ConfigEvents(t *testing.T) {
	var stdout bytes.Buffer
	w := newTestWatcher(t, &stdout)
	rebuild := make(chan struct{}, 1)
	w.subscribe(rebuild)

	ctx := context.Background()
	w.bus.Publish(ctx, events.Event{Name: events.ConfigRejected, Err: errors.New("bad yaml")})
	select {
	case <-rebuild:
		t.Error("rejected config triggered a rebuild")
	default:
	}

	w.bus.Publish(ctx, events.Event{Name: events.ConfigReloaded})
	w.bus.Publish(ctx, events.Event{Name: events.ConfigReloaded})
	select {
	case <-rebuild:
	default:
		t.Error("reloaded config did not trigger a rebuild")
	}

	if got := value(t, w.metrics.ConfigReloads); got != 2 {
		t.Errorf("reloads = %v, want 2", got)
	}
	if got := value(t, w.metrics.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
}
