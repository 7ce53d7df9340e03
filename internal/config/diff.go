package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TeleprompterChanged is true if any aligner or follower tuning changed.
	TeleprompterChanged bool

	// CountdownChanged is true if any synchronizer tuning changed.
	CountdownChanged bool

	// RestartRequired lists sections that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Changed reports whether d carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.TeleprompterChanged || d.CountdownChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.TeleprompterChanged = old.Teleprompter != new.Teleprompter
	d.CountdownChanged = !old.Countdown.equal(new.Countdown)

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if !recognizerEqual(old.Recognizer, new.Recognizer) ||
		old.Breaker != new.Breaker ||
		!slices.EqualFunc(old.RecognizerFallbacks, new.RecognizerFallbacks, recognizerEqual) {
		d.RestartRequired = append(d.RestartRequired, "recognizer")
	}
	if old.Realtime != new.Realtime {
		d.RestartRequired = append(d.RestartRequired, "realtime")
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// recognizerEqual compares the scalar fields of two entries. Options are
// compared by length only.
func recognizerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Language == b.Language &&
		a.SampleRate == b.SampleRate &&
		len(a.Options) == len(b.Options)
}
