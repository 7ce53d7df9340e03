package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidRecognizerNames lists known streaming recogniser names.
// Used by [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"deepgram"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the defaults. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset server and store fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Store
	if cfg.Store.Driver != "" && !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, postgres", cfg.Store.Driver))
	}
	if cfg.Store.Driver == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.driver is postgres"))
	}
	if cfg.Store.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("store.max_conns %d must not be negative", cfg.Store.MaxConns))
	}

	// Teleprompter
	tp := cfg.Teleprompter
	if tp.LookAhead < 0 {
		errs = append(errs, fmt.Errorf("teleprompter.look_ahead %d must not be negative", tp.LookAhead))
	}
	if tp.RecentWords < 0 {
		errs = append(errs, fmt.Errorf("teleprompter.recent_words %d must not be negative", tp.RecentWords))
	}
	if tp.MinWordLength < 0 {
		errs = append(errs, fmt.Errorf("teleprompter.min_word_length %d must not be negative", tp.MinWordLength))
	}
	if tp.MinSimilarity < 0 || tp.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("teleprompter.min_similarity %.2f is out of range [0, 1]", tp.MinSimilarity))
	}
	if tp.Scorer != "" && !tp.Scorer.IsValid() {
		errs = append(errs, fmt.Errorf("teleprompter.scorer %q is invalid; valid values: positional, jaro-winkler", tp.Scorer))
	}
	if tp.KeywordBoost < 0 {
		errs = append(errs, fmt.Errorf("teleprompter.keyword_boost %.2f must not be negative", tp.KeywordBoost))
	}
	if tp.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("teleprompter.max_restarts %d must not be negative", tp.MaxRestarts))
	}

	// Countdown
	if t := cfg.Countdown.Tolerance; t != nil && *t < 0 {
		errs = append(errs, fmt.Errorf("countdown.tolerance %d must not be negative", *t))
	}
	if f := cfg.Countdown.OvertimeFloor; f != nil && *f > 0 {
		errs = append(errs, fmt.Errorf("countdown.overtime_floor %d must be zero or negative", *f))
	}
	if cfg.Countdown.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("countdown.tick_interval %s must not be negative", cfg.Countdown.TickInterval))
	}

	// Recognizer
	validateRecognizerName(cfg.Recognizer.Name)
	if cfg.Recognizer.Name != "" && cfg.Recognizer.APIKey == "" {
		slog.Warn("recognizer.api_key is empty; voice following will report the recognizer as unavailable",
			"recognizer", cfg.Recognizer.Name)
	}
	if cfg.Recognizer.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recognizer.sample_rate %d must not be negative", cfg.Recognizer.SampleRate))
	}

	for i, fb := range cfg.RecognizerFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("recognizer_fallbacks[%d].name is required", i))
			continue
		}
		validateRecognizerName(fb.Name)
	}
	if len(cfg.RecognizerFallbacks) > 0 && cfg.Recognizer.Name == "" {
		errs = append(errs, errors.New("recognizer_fallbacks need a primary recognizer.name"))
	}
	if cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must not be negative", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout %s must not be negative", cfg.Breaker.ResetTimeout))
	}

	// Realtime
	if cfg.Realtime.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("realtime.queue_size %d must not be negative", cfg.Realtime.QueueSize))
	}
	if cfg.Realtime.PingInterval < 0 || cfg.Realtime.WriteTimeout < 0 {
		errs = append(errs, errors.New("realtime.ping_interval and realtime.write_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// validateRecognizerName logs a warning if name is non-empty and not found in
// [ValidRecognizerNames].
func validateRecognizerName(name string) {
	if name == "" || slices.Contains(ValidRecognizerNames, name) {
		return
	}
	slog.Warn("unknown recognizer name; may be a typo or third-party provider",
		"name", name,
		"known", ValidRecognizerNames,
	)
}

// loadBytes parses data the same way as [LoadFromReader].
func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
