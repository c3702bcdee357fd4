// Command convoyd runs the dispatch voice-agent service: webhook and duplex
// websocket channels in front of the dialogue engine, plus the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harunnryd/convoy/pkg/config"
	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/logging"
	"github.com/harunnryd/convoy/pkg/metrics"
	"github.com/harunnryd/convoy/pkg/oracle"
	"github.com/harunnryd/convoy/pkg/redact"
	"github.com/harunnryd/convoy/pkg/runner"
	"github.com/harunnryd/convoy/pkg/slots"
	"github.com/harunnryd/convoy/pkg/store"
	"github.com/harunnryd/convoy/pkg/telephony"
	"github.com/harunnryd/convoy/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	observer, closeObserver, err := buildObserver(cfg.Metrics)
	if err != nil {
		return err
	}
	defer closeObserver()

	st, closeStore, err := buildStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	or := buildOracle(cfg.Oracle, logger)
	tel, err := buildTelephony(cfg, logger)
	if err != nil {
		return err
	}

	summarizer := dialog.NewSummarizer(st, or, logging.NewComponentLogger(logger, "summarizer"))
	engine := dialog.NewEngine(
		st,
		or,
		slots.NewExtractor(cfg.Slots.HeuristicsEnabled),
		slots.NewPolicy(cfg.Slots.TextTemplatesEnabled),
		summarizer,
		observer,
		logging.NewComponentLogger(logger, "engine"),
		dialog.Config{ConfirmBeforeClose: cfg.Dialog.ConfirmBeforeClose},
	)

	server := transport.NewServer(st, engine, summarizer, tel,
		logging.NewComponentLogger(logger, "transport"),
		transport.Config{
			WebhookSecret: cfg.Server.WebhookSecret,
			PublicURL:     cfg.Server.PublicURL,
		})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutMS) * time.Millisecond
	life := runner.NewLifecycleRunner(
		drainFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(ctx)
		}),
		runner.Hooks{
			OnStart: func() {
				logger.Info("listening",
					"addr", cfg.Server.Addr,
					"environment", cfg.Environment,
					"storage", cfg.Storage.Driver,
					"telephony", cfg.Telephony.Provider)
			},
			OnStop: func() { logger.Info("stopped") },
		},
		shutdownTimeout,
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case err := <-serveErr:
			logger.Error("http server failed", "error", err.Error())
			stop()
		case <-ctx.Done():
		}
	}()

	return life.Run(ctx)
}

func buildStore(cfg config.StorageConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pool, err := store.NewPool(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("storage ready", "driver", "postgres")
		return store.NewPostgres(pool), pool.Close, nil
	default:
		logger.Info("storage ready", "driver", "memory")
		return store.NewMemory(), func() {}, nil
	}
}

func buildOracle(cfg config.OracleConfig, logger *slog.Logger) oracle.Oracle {
	client := oracle.NewClient(oracle.ClientConfig{
		GroqAPIKey:   cfg.GroqAPIKey,
		GroqModel:    cfg.GroqModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		Retry: oracle.RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RetryMaxDelayMS) * time.Millisecond,
		},
	}, logging.NewComponentLogger(logger, "oracle"))
	if client == nil {
		logger.Warn("no oracle API key configured, using the simulated oracle")
		return oracle.NewSimulated()
	}
	return client
}

func buildTelephony(cfg config.Config, logger *slog.Logger) (telephony.Provider, error) {
	telLogger := logging.NewComponentLogger(logger, "telephony")
	switch {
	case cfg.Telephony.IsSimulated():
		return telephony.NewSimulated(telLogger), nil
	case cfg.Telephony.Provider == "rest":
		settings, err := cfg.Telephony.RESTSettings()
		if err != nil {
			return nil, err
		}
		return telephony.NewREST(telephony.RESTConfig{
			BaseURL:    settings.BaseURL,
			APIKey:     settings.APIKey,
			FromNumber: settings.FromNumber,
			WebhookURL: webhookURL(cfg.Server.PublicURL),
			Timeout:    time.Duration(settings.TimeoutMS) * time.Millisecond,
		}, telLogger), nil
	case cfg.Telephony.Provider == "twilio":
		settings, err := cfg.Telephony.TwilioSettings()
		if err != nil {
			return nil, err
		}
		return telephony.NewTwilio(telephony.TwilioConfig{
			AccountSID: settings.AccountSID,
			AuthToken:  settings.AuthToken,
			FromNumber: settings.FromNumber,
			VoiceURL:   webhookURL(cfg.Server.PublicURL),
		}), nil
	}
	return nil, fmt.Errorf("telephony provider %q is not supported", cfg.Telephony.Provider)
}

func buildObserver(cfg config.MetricsConfig) (metrics.Observer, func(), error) {
	if cfg.JSONLPath == "" {
		return metrics.NoopObserver{}, func() {}, nil
	}
	f, err := os.OpenFile(cfg.JSONLPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open metrics sink: %w", err)
	}
	async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), 256)
	return async, func() {
		async.Close()
		_ = f.Close()
	}, nil
}

func webhookURL(publicURL string) string {
	if publicURL == "" {
		return ""
	}
	return publicURL + "/webhook"
}

// drainFunc adapts a func to the runner's Drainer.
type drainFunc func() error

func (f drainFunc) Drain() error { return f() }
