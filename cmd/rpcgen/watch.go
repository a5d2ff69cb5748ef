package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/ngAnzar/rpc/adapters/metrics"
	"github.com/ngAnzar/rpc/config"
	"github.com/ngAnzar/rpc/core/compiler"
	"github.com/ngAnzar/rpc/core/events"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newWatchCmd(c *cli) *cobra.Command {
	var flags buildFlags
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch [inputs...]",
		Short: "Recompile whenever an input document changes",
		Long: `Compile once, then watch the input documents, the documents they
reference and the config file, recompiling after every change.

Examples:
  rpcgen watch -o internal/api -i 'schema/**/*.json'
  rpcgen watch --metrics-addr :9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.watch(ctx, &flags, args, metricsAddr)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve compile metrics on this address")
	return cmd
}

// watcher recompiles on change. It owns the fsnotify watcher and the set of
// watched directories, and reports through the event bus.
type watcher struct {
	c       *cli
	flags   *buildFlags
	args    []string
	holder  *config.Holder // nil without a config file
	metrics *metrics.Collector
	bus     *events.Bus
	fs      *fsnotify.Watcher
	dirs    map[string]bool
	logger  zerolog.Logger
}

func (c *cli) watch(ctx context.Context, flags *buildFlags, args []string, metricsAddr string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	flags.apply(cfg, args)
	if len(cfg.Inputs) == 0 {
		return errMissingInput
	}
	logger := c.logger(cfg.Logging)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	w := &watcher{
		c:       c,
		flags:   flags,
		args:    args,
		metrics: metrics.New(cfg.Metrics.Namespace),
		bus:     events.NewBus(logger),
		fs:      fsw,
		dirs:    make(map[string]bool),
		logger:  logger,
	}

	rebuild := make(chan struct{}, 1)
	w.subscribe(rebuild)

	if _, err := os.Stat(c.cfgFile); err == nil {
		holder, err := config.NewHolder(c.cfgFile, logger)
		if err != nil {
			return err
		}
		defer holder.Stop()
		holder.OnChange(func(*config.Config) {
			w.bus.Publish(ctx, events.Event{Name: events.ConfigReloaded})
		})
		holder.OnError(func(err error) {
			w.bus.Publish(ctx, events.Event{Name: events.ConfigRejected, Err: err})
		})
		if err := holder.WatchFile(); err != nil {
			return err
		}
		w.holder = holder
	}

	if metricsAddr != "" {
		srv := w.serveMetrics(metricsAddr)
		defer srv.Close()
	}

	w.run(ctx, cfg)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("watch stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isDocument(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.holder != nil && event.Name == w.holder.Path() {
				continue
			}
			logger.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("document changed")
			timer.Reset(w.config().Watch.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("file watcher error")

		case <-timer.C:
			w.run(ctx, w.config())

		case <-rebuild:
			w.run(ctx, w.config())
		}
	}
}

// config is the current configuration with the command line applied.
func (w *watcher) config() *config.Config {
	if w.holder == nil {
		cfg, err := w.c.loadConfig()
		if err != nil {
			w.logger.Error().Err(err).Msg("config reload failed")
			cfg, _ = config.LoadFromEnv()
		}
		if cfg == nil {
			cfg = &config.Config{}
		}
		w.flags.apply(cfg, w.args)
		return cfg
	}
	cfg := *w.holder.Get()
	cfg.Inputs = append([]string(nil), cfg.Inputs...)
	w.flags.apply(&cfg, w.args)
	return &cfg
}

// subscribe wires metrics, console output and config-triggered rebuilds to
// the bus.
func (w *watcher) subscribe(rebuild chan<- struct{}) {
	w.bus.Subscribe(events.CompileStarted, func(context.Context, events.Event) error {
		w.metrics.RunsActive.Inc()
		return nil
	})
	w.bus.Subscribe(events.CompileFinished, w.observeRun)
	w.bus.Subscribe(events.CompileFailed, w.observeRun)

	w.bus.Subscribe(events.CompileFinished, func(_ context.Context, e events.Event) error {
		res, _ := e.Data["result"].(*compiler.Result)
		out, _ := e.Data["out"].(string)
		if res != nil {
			w.c.printResult(res, out)
		}
		return nil
	})
	w.bus.Subscribe(events.CompileFailed, func(_ context.Context, e events.Event) error {
		w.logger.Error().Err(e.Err).Msg("compile failed, waiting for changes")
		_, err := fmt.Fprintf(w.c.stdout, "  %s %v\n", crossMark, e.Err)
		return err
	})

	w.bus.Subscribe("config.*", func(_ context.Context, e events.Event) error {
		w.metrics.ObserveReload(e.At, e.Err)
		return nil
	})
	w.bus.Subscribe(events.ConfigReloaded, func(context.Context, events.Event) error {
		select {
		case rebuild <- struct{}{}:
		default:
		}
		return nil
	})
}

func (w *watcher) observeRun(_ context.Context, e events.Event) error {
	w.metrics.RunsActive.Dec()
	run := metrics.Run{Err: e.Err}
	run.Duration, _ = e.Data["duration"].(time.Duration)
	if res, ok := e.Data["result"].(*compiler.Result); ok && res != nil {
		run.Documents, run.Routines = len(res.Documents), res.Routines
		run.Written, run.Skipped = res.Written, res.Skipped
	}
	w.metrics.ObserveRun(run)
	return nil
}

// run compiles once and extends the watch to every directory involved.
// Failures are published; watch mode keeps going.
func (w *watcher) run(ctx context.Context, cfg *config.Config) {
	w.bus.Publish(ctx, events.Event{Name: events.CompileStarted})

	start := time.Now()
	res, err := w.c.build(ctx, cfg, w.logger)
	data := map[string]any{"duration": time.Since(start), "out": cfg.Output.Path}

	for _, dir := range patternDirs(cfg.Inputs) {
		w.add(dir)
	}
	if err != nil {
		w.bus.Publish(ctx, events.Event{Name: events.CompileFailed, Err: err, Data: data})
		return
	}
	for _, doc := range res.Documents {
		w.add(filepath.Dir(doc.Path))
	}
	data["result"] = res
	w.bus.Publish(ctx, events.Event{Name: events.CompileFinished, Data: data})
}

func (w *watcher) add(dir string) {
	if w.dirs[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")
		return
	}
	w.dirs[dir] = true
	w.logger.Debug().Str("dir", dir).Msg("watching directory")
}

func (w *watcher) serveMetrics(addr string) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", w.metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	w.logger.Info().Str("addr", addr).Msg("serving compile metrics")
	return srv
}

// patternDirs returns the directories that may hold files matching the
// patterns: the static prefix of each glob and, for **, its subdirectories.
func patternDirs(patterns []string) []string {
	var dirs []string
	for _, p := range patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(p))
		root, err := filepath.Abs(filepath.FromSlash(base))
		if err != nil {
			continue
		}
		dirs = append(dirs, root)
		if !strings.Contains(rest, "**") {
			continue
		}
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() && path != root {
				dirs = append(dirs, path)
			}
			return nil
		})
	}
	return dirs
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
