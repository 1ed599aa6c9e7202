package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"metasbot/internal/alert"
	"metasbot/internal/config"
	"metasbot/internal/jobs"
	"metasbot/internal/scheduler"
	"metasbot/internal/storage"
	"metasbot/internal/whatsapp"
	logx "metasbot/pkg/logx"
)

const (
	exitOK   = 0
	exitErr  = 1
	exitLock = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath string
		runAll  bool
	)
	flag.StringVar(&cfgPath, "config", "./metasbot.yaml", "path to config yaml")
	flag.BoolVar(&runAll, "run-all", false, "run every active schedule immediately, ignoring time-of-day, then exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bootLog := logx.NewConsole("INFO")

	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		bootLog.Error("config load failed", logx.Err(err))
		return exitErr
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
	log = log.With(logx.String("comp", "main"))

	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("storage open failed", logx.Err(err))
		return exitErr
	}
	defer store.Close()

	notify, err := buildNotifier(cfg, log)
	if err != nil {
		log.Error("alert setup failed", logx.Err(err))
		return exitErr
	}

	messenger, err := buildMessenger(cfg, log)
	if err != nil {
		log.Error("whatsapp client setup failed", logx.Err(err))
		return exitErr
	}

	registry := scheduler.NewRegistry()
	jobs.RegisterAll(registry, jobs.Deps{
		Store:     store,
		Messenger: messenger,
		Log:       log.With(logx.String("comp", "jobs")),
	})
	log.Info("job registry built", logx.Any("definitions", registry.Keys()))

	opts, err := schedulerOptions(cfg)
	if err != nil {
		log.Error("bad scheduler config", logx.Err(err))
		return exitErr
	}
	svc := scheduler.New(opts, store, registry, notify, log.With(logx.String("comp", "scheduler")))

	if runAll {
		log.Info("run-all mode: executing every active schedule once")
		if err := svc.RunAll(ctx); err != nil {
			log.Error("run-all failed", logx.Err(err))
			return exitErr
		}
		return exitOK
	}

	svc.Ready = func() {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	}

	// Hot-reload the log level on config file changes. Schedules come from
	// the store and refresh on their own cycle.
	go func() {
		ch := cfgm.Subscribe(1)
		go func() {
			if err := cfgm.Watch(ctx); err != nil {
				log.Warn("config watcher stopped", logx.Err(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case fresh := <-ch:
				logSvc.Apply(logx.Config{
					Level:   fresh.Logging.Level,
					Console: fresh.Logging.Console,
					File: logx.FileConfig{
						Enabled: fresh.Logging.File.Enabled,
						Path:    fresh.Logging.File.Path,
					},
				})
			}
		}
	}()

	err = svc.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if errors.Is(err, scheduler.ErrLockUnavailable) {
		return exitLock
	}
	if err != nil {
		log.Error("scheduler failed", logx.Err(err))
		return exitErr
	}
	return exitOK
}

func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
}

func buildNotifier(cfg *config.Config, log logx.Logger) (alert.Notifier, error) {
	if !cfg.Alert.Enabled {
		return alert.Nop{}, nil
	}
	return alert.NewTelegram(alert.TelegramConfig{
		Token:  cfg.Alert.Token,
		ChatID: cfg.Alert.ChatID,
	}, log.With(logx.String("comp", "alert")))
}

func buildMessenger(cfg *config.Config, log logx.Logger) (jobs.Messenger, error) {
	minDelay, err := config.ParseDurationField("whatsapp.min_delay", cfg.WhatsApp.MinDelay)
	if err != nil {
		return nil, err
	}
	maxDelay, err := config.ParseDurationField("whatsapp.max_delay", cfg.WhatsApp.MaxDelay)
	if err != nil {
		return nil, err
	}
	return whatsapp.New(whatsapp.Config{
		ServerURL: cfg.WhatsApp.ServerURL,
		APIKey:    cfg.WhatsApp.APIKey,
		Instance:  cfg.WhatsApp.Instance,
		MinDelay:  minDelay,
		MaxDelay:  maxDelay,
	}, log.With(logx.String("comp", "whatsapp")))
}

func schedulerOptions(cfg *config.Config) (scheduler.Options, error) {
	var opts scheduler.Options
	var err error
	if opts.Tick, err = config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, time.Second); err != nil {
		return opts, err
	}
	if opts.RefreshEvery, err = config.ParseDurationOrDefault("scheduler.refresh_every", cfg.Scheduler.RefreshEvery, 5*time.Minute); err != nil {
		return opts, err
	}
	if opts.JobTimeout, err = config.ParseDurationOrDefault("scheduler.job_timeout", cfg.Scheduler.JobTimeout, 15*time.Minute); err != nil {
		return opts, err
	}
	if opts.Lock.StaleAfter, err = config.ParseDurationOrDefault("lock.stale_after", cfg.Lock.StaleAfter, 60*time.Second); err != nil {
		return opts, err
	}
	if opts.Lock.RenewEvery, err = config.ParseDurationOrDefault("lock.renew_every", cfg.Lock.RenewEvery, 10*time.Second); err != nil {
		return opts, err
	}
	return opts, nil
}
