package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bikewatch/internal/config"
	"bikewatch/internal/daemon"
	"bikewatch/internal/history"
	"bikewatch/internal/monitor"
	"bikewatch/internal/notify"
	"bikewatch/internal/state"
	logx "bikewatch/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./bikewatch.yaml", "path to config yaml/json")
	daemonMode := flag.Bool("daemon", false, "run the in-process check loop instead of a single check")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	if err := run(ctx, cfg, mgr, logSvc, log, *daemonMode); err != nil {
		log.Error("run failed", logx.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mgr *config.Manager, logSvc *logx.Service, log logx.Logger, daemonMode bool) error {
	fetchTimeout, err := config.ParseDurationOrDefault("history.timeout", cfg.History.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	retryDelay, err := config.ParseDurationOrDefault("history.retry_delay", cfg.History.RetryDelay, time.Second)
	if err != nil {
		return err
	}
	client := history.NewClient(history.Config{
		BaseURL:    cfg.History.BaseURL,
		Timeout:    fetchTimeout,
		Attempts:   cfg.History.Attempts,
		RetryDelay: retryDelay,
	}, log.With(logx.String("comp", "history")))

	busyTimeout, err := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	if err != nil {
		return err
	}
	statePath := cfg.State.Path
	if statePath == "" {
		statePath = "./last_records.json"
	}
	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        statePath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "state")))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	channels, err := buildChannels(cfg, log)
	if err != nil {
		return err
	}

	pace, err := config.ParseDurationOrDefault("notify.pace", cfg.Notify.Pace, time.Second)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(pace, channels, log.With(logx.String("comp", "notify")))

	bikes := make([]int64, 0, len(cfg.Bikes))
	for _, id := range cfg.Bikes {
		bikes = append(bikes, int64(id))
	}
	engine := monitor.NewEngine(bikes, client, store, dispatcher, log.With(logx.String("comp", "monitor")))

	if daemonMode {
		interval, err := config.ParseDurationOrDefault("daemon.interval", cfg.Daemon.Interval, 60*time.Second)
		if err != nil {
			return err
		}
		loop := daemon.New(daemon.Config{
			Interval: interval,
			Watchdog: cfg.Daemon.Watchdog,
		}, engine, mgr, logSvc, dispatcher, log.With(logx.String("comp", "daemon")))
		return loop.Run(ctx)
	}

	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("check complete",
		logx.Int("bikes", report.BikesChecked),
		logx.Int("fetch_errors", report.FetchErrors),
		logx.Int("new_records", report.NewRecords),
		logx.Int("notified", report.Notified),
		logx.Bool("persisted", report.Persisted),
		logx.Bool("cold_start", report.ColdStart))
	return nil
}

func buildChannels(cfg *config.Config, log logx.Logger) ([]notify.Channel, error) {
	var channels []notify.Channel

	if cfg.Webhook.URL != "" {
		timeout, err := config.ParseDurationOrDefault("webhook.timeout", cfg.Webhook.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		wh, err := notify.NewWebhook(cfg.Webhook.URL, timeout, log.With(logx.String("comp", "webhook")))
		if err != nil {
			return nil, err
		}
		channels = append(channels, wh)
	}

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram channel: %w", err)
		}
		channels = append(channels, tg)
	}

	return channels, nil
}
