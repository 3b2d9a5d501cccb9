// Package daemon runs the check loop in-process for deployments that have no
// external scheduler. Normal deployments run one check per invocation instead.
package daemon

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"bikewatch/internal/config"
	"bikewatch/internal/monitor"
	"bikewatch/internal/notify"
	logx "bikewatch/pkg/logx"
)

type Config struct {
	Interval time.Duration
	Watchdog bool
}

const defaultInterval = 60 * time.Second

// Loop schedules one check per tick. Ticks are single-flight: if a check is
// still running when the next tick fires, the tick is skipped, preserving the
// engine's no-overlapping-runs requirement.
type Loop struct {
	cfg        Config
	engine     *monitor.Engine
	mgr        *config.Manager
	logs       *logx.Service
	dispatcher *notify.Dispatcher
	log        logx.Logger

	running atomic.Bool
}

func New(cfg Config, engine *monitor.Engine, mgr *config.Manager, logs *logx.Service, dispatcher *notify.Dispatcher, log logx.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{cfg: cfg, engine: engine, mgr: mgr, logs: logs, dispatcher: dispatcher, log: log}
}

// Run blocks until ctx is done. A failed tick is logged and never stops the
// loop; one bad cycle must not prevent the next.
func (l *Loop) Run(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", l.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { l.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule checks: %w", err)
	}

	go l.watchConfig(ctx)

	// First check immediately; the cron entry only fires after one interval.
	l.tick(ctx)

	c.Start()
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyReady)
	l.log.Info("daemon started", logx.Duration("interval", l.cfg.Interval))

	<-ctx.Done()
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping)
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

func (l *Loop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !l.running.CompareAndSwap(false, true) {
		l.log.Warn("previous check still running; skipping tick")
		return
	}
	defer l.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("check panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	report, err := l.engine.Run(ctx)
	if err != nil {
		l.log.Error("check failed", logx.Err(err))
		return
	}
	l.log.Info("check complete",
		logx.Int("bikes", report.BikesChecked),
		logx.Int("fetch_errors", report.FetchErrors),
		logx.Int("new_records", report.NewRecords),
		logx.Int("notified", report.Notified),
		logx.Bool("persisted", report.Persisted))

	if l.cfg.Watchdog {
		_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyWatchdog)
	}
}

// watchConfig applies the reloadable parts of an edited config file: logging
// sinks/level and notification pacing. Bikes, state, and channel changes need
// a restart and are only reported.
func (l *Loop) watchConfig(ctx context.Context) {
	if l.mgr == nil {
		return
	}

	initial := l.mgr.Get()

	ch := l.mgr.Subscribe(4)
	defer l.mgr.Unsubscribe(ch)

	go func() {
		if err := l.mgr.Watch(ctx); err != nil {
			l.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-ch:
			if cfg == nil {
				continue
			}
			if l.logs != nil {
				l.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
			}
			if l.dispatcher != nil {
				pace, err := config.ParseDurationOrDefault("notify.pace", cfg.Notify.Pace, time.Second)
				if err == nil {
					l.dispatcher.SetPace(pace)
				}
			}
			if initial != nil && !equalBikes(initial.Bikes, cfg.Bikes) {
				l.log.Info("bikes list changed in config; restart required to apply")
			}
		}
	}
}

func equalBikes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
