// Command podium runs the Podium meeting facilitation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/podium/internal/app"
	"github.com/MrWong99/podium/internal/config"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/resilience"
	"github.com/MrWong99/podium/pkg/provider/stt"
	"github.com/MrWong99/podium/pkg/provider/stt/deepgram"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Duration("watch", 5*time.Second, "config file poll interval; 0 disables hot reload")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "podium: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "podium: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("podium starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "podium",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := telemetry.Metrics()
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	registerBuiltinRecognizers(reg)

	recognizer, err := buildRecognizer(cfg, reg)
	if err != nil {
		slog.Error("failed to build recognizer", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	opts := []app.Option{app.WithLogLevel(level), app.WithMetrics(metrics)}
	if *watch > 0 {
		opts = append(opts, app.WithConfigWatch(*configPath, *watch))
	}
	application, err := app.New(ctx, cfg, recognizer, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if code == 0 {
		slog.Info("goodbye")
	}
	return code
}

// registerBuiltinRecognizers wires every compiled-in recognizer into reg.
func registerBuiltinRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(entry.SampleRate))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		if s := optInt(entry.Options, "keep_alive_seconds"); s > 0 {
			opts = append(opts, deepgram.WithKeepAlive(time.Duration(s)*time.Second))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.Recognizers() {
		slog.Debug("registered recognizer", "name", name)
	}
}

// buildRecognizer creates the configured recognizer and its fallbacks behind
// circuit breakers. No name means voice following stays off; entries nothing
// is registered under are skipped.
func buildRecognizer(cfg *config.Config, reg *config.Registry) (stt.Provider, error) {
	if cfg.Recognizer.Name == "" {
		return nil, nil
	}
	var backends []resilience.Backend
	for _, entry := range append([]config.ProviderEntry{cfg.Recognizer}, cfg.RecognizerFallbacks...) {
		p, err := reg.CreateRecognizer(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("recognizer not available, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create recognizer %q: %w", entry.Name, err)
		}
		name := entry.Name
		if entry.Model != "" {
			name += "/" + entry.Model
		}
		backends = append(backends, resilience.Backend{Name: name, Provider: p})
		slog.Info("recognizer created", "name", entry.Name, "model", entry.Model, "fallback", len(backends) > 1)
	}
	if len(backends) == 0 {
		slog.Warn("no recognizer available, voice following disabled")
		return nil, nil
	}
	r, err := resilience.NewRecognizer(resilience.BreakerConfig{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
	}, backends...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Podium · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	} else {
		printRow("TLS", "(disabled)")
	}
	printRow("Store", string(cfg.Store.Driver))
	recognizer := cfg.Recognizer.Name
	switch {
	case recognizer == "":
		recognizer = "(not configured)"
	case cfg.Recognizer.Model != "":
		recognizer += " / " + cfg.Recognizer.Model
	}
	printRow("Recognizer", recognizer)
	printRow("Fallbacks", fmt.Sprint(len(cfg.RecognizerFallbacks)))
	scorer := string(cfg.Teleprompter.Scorer)
	if scorer == "" {
		scorer = "(default)"
	}
	printRow("Aligner scorer", scorer)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// optInt reads an integer option. YAML decodes whole numbers as int and
// JSON-ish sources as float64; both are accepted.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
