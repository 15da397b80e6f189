package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailnotify/mailnotify/internal/config"
	"github.com/mailnotify/mailnotify/internal/daemon"
	"github.com/mailnotify/mailnotify/internal/logging"
	"github.com/mailnotify/mailnotify/internal/metrics"
	"github.com/mailnotify/mailnotify/internal/notify"
)

func main() {
	cfgFile := flag.String("config", "", "Path to config file")
	listen := flag.String("listen", "", "HTTP listen address (overrides config and env)")
	storeDriver := flag.String("store", "", "option store driver: file, redis, postgres or memory")
	testChannel := flag.String("test-channel", "", "send a test notification to this channel and exit")
	testEvent := flag.String("test-event", "failed", "event kind used with --test-channel")
	flag.Parse()

	cfg, err := loadConfig(*cfgFile)
	if err != nil {
		log.Fatalf("%v", err)
	}
	// CLI flags have the highest precedence
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *storeDriver != "" {
		cfg.StoreDriver = *storeDriver
	}

	cleanup := initLogging()
	defer cleanup()

	ctx := context.Background()
	d, err := daemon.New(ctx, cfg)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to initialise daemon")
	}

	if *testChannel != "" {
		if err := runTest(ctx, d.Manager(), *testChannel, *testEvent); err != nil {
			logging.Get().Fatal().Err(err).Msg("test notification failed")
		}
		return
	}

	initMetrics(cfg)
	startDaemonAndWait(ctx, d)
}

// loadConfig applies defaults, then the config file, then the environment.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		c, err := config.LoadConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed loading config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}
	return cfg, nil
}

// initLogging initializes log subsystem from env and returns a cleanup func
func initLogging() func() {
	logLevel := os.Getenv("MAILNOTIFY_LOG_LEVEL")
	logFile := os.Getenv("MAILNOTIFY_LOG_FILE")
	cleanup, err := logging.Init(logFile, logLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return cleanup
}

// initMetrics starts the optional dedicated metrics server. /metrics and
// /stats are also served on the main listener.
func initMetrics(cfg *config.Config) {
	if !cfg.MetricsEnabled {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.PromHandler())
		mux.Handle("/status", metrics.JSONHandler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
		_ = http.ListenAndServe(addr, mux)
	}()
}

// runTest sends one synthetic notification and reports whether it went out.
func runTest(ctx context.Context, m *notify.Manager, channel, event string) error {
	kind, err := notify.ParseKind(event)
	if err != nil {
		return err
	}
	name, err := parseChannel(channel)
	if err != nil {
		return err
	}
	sent, err := m.SendTest(ctx, name, kind)
	if err != nil {
		return err
	}
	logging.Get().Info().Str("channel", channel).Str("event", kind.Slug()).Bool("dispatched", sent).Msg("test notification")
	return nil
}

func parseChannel(s string) (config.ChannelName, error) {
	for _, c := range config.Channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// startDaemonAndWait starts the daemon and waits for a shutdown signal
func startDaemonAndWait(ctx context.Context, d *daemon.Daemon) {
	if err := d.Start(); err != nil {
		logging.Get().Fatal().Err(err).Msg("failed to start daemon")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	// Graceful shutdown: in-flight dispatches are bounded by the 8s timeout
	logging.Get().Info().Msg("shutdown signal received, waiting for active operations to complete")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	d.Stop(shutdownCtx)
}
