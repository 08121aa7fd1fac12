package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nightingale/internal/api"
	"nightingale/internal/config"
	"nightingale/internal/eventbus"
	"nightingale/internal/generation"
	rtsup "nightingale/internal/runtime/supervisor"
	"nightingale/internal/server"
	"nightingale/internal/storage"
	"nightingale/internal/task/engine"
	logx "nightingale/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	archive storage.Archive

	engine *engine.Service
	api    *api.API
	http   *server.Service
}

// New loads cfgPath and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(validateConfig)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		bus:  eventbus.New(),
	}
	if err := a.build(context.Background(), cfg, log); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	var engOpts []engine.Option
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return err
		}
		a.archive = st
		engOpts = append(engOpts, engine.WithArchiver(taskArchiver{store: st}))
		a.log.Info("task archive enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	engCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return a.closeArchive(err)
	}
	a.engine = engine.New(engCfg, log.With(logx.String("comp", "taskengine")), a.bus, engOpts...)

	backends, err := mapBackends(cfg)
	if err != nil {
		return a.closeArchive(err)
	}
	client := generation.NewClient(backends, log)

	var writer generation.StoryWriter
	if llmCfg, ok, err := mapLLMConfig(cfg); err != nil {
		return a.closeArchive(err)
	} else if ok {
		w, err := generation.NewGeminiWriter(ctx, llmCfg, log)
		if err != nil {
			return a.closeArchive(fmt.Errorf("llm: %w", err))
		}
		writer = w
		a.log.Info("story writer enabled", logx.Any("models", llmCfg.Models))
	}
	generation.NewHandlers(client, writer, log).Register(a.engine.Registry())

	apiOpts, err := mapAPIOptions(cfg)
	if err != nil {
		return a.closeArchive(err)
	}
	a.api = api.New(a.engine, log.With(logx.String("comp", "api")), apiOpts, api.WithHealth(a.healthInfo))

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return a.closeArchive(err)
	}
	a.http = server.New(srvCfg, a.api.Routes(), log.With(logx.String("comp", "http")))
	return nil
}

func (a *App) closeArchive(err error) error {
	if a.archive != nil {
		_ = a.archive.Close()
		a.archive = nil
	}
	return err
}

// Engine exposes the task engine, mainly for tests and embedding.
func (a *App) Engine() *engine.Service { return a.engine }

// Addr returns the HTTP listen address once started.
func (a *App) Addr() string { return a.http.Addr() }

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) healthInfo() map[string]any {
	out := map[string]any{"bus_dropped": a.bus.Dropped()}
	sups := map[string]any{}
	if a.sup != nil {
		sups["app"] = a.sup.Snapshot()
	}
	if s := a.engine.Supervisor(); s != nil {
		sups["task.engine"] = s.Snapshot()
	}
	if s := a.http.Supervisor(); s != nil {
		sups["http"] = s.Snapshot()
	}
	out["supervisors"] = sups
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.engine.Start(a.sup.Context())
	if err := a.http.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.engine.Stop(stopCtx)
		cancel()
		return err
	}

	events, unsub := a.bus.Subscribe(128, "task.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
				if te, ok := e.Data.(engine.TaskEvent); ok && te.ID != "" {
					fields = append(fields, logx.String("task_id", te.ID))
				}
				a.log.Debug("event", fields...)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.watchdogLoop)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("addr", a.http.Addr()))
	return nil
}

// applyConfig pushes a validated config to the live components. Archive
// changes need a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "archive", "backends", "llm":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(next))

	if engCfg, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(engCfg)
	}

	if opts, err := mapAPIOptions(next); err != nil {
		a.log.Warn("invalid api config; keeping previous", logx.Err(err))
	} else {
		a.api.Apply(opts)
	}

	if srvCfg, err := mapServerConfig(next); err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
	} else if err := a.http.Reconfigure(ctx, srvCfg); err != nil {
		a.log.Error("http rebind failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	a.sup.Cancel()

	var errs []error
	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > max {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("http", 5*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("archive", time.Second, func(c context.Context) error {
		if a.archive != nil {
			return a.archive.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
