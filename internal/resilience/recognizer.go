package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/podium/pkg/provider/stt"
)

// ErrAllFailed is returned when no backend could open a session.
var ErrAllFailed = errors.New("resilience: all recognizers failed")

// Backend is one named recognizer.
type Backend struct {
	Name     string
	Provider stt.Provider
}

type guarded struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// Recognizer implements [stt.Provider] over an ordered list of backends.
// StartStream tries them in order, skipping those whose breaker is open.
type Recognizer struct {
	backends []guarded
}

var _ stt.Provider = (*Recognizer)(nil)

// NewRecognizer wraps backends, the first being the preferred one. cfg.Name
// is replaced by each backend's name.
func NewRecognizer(cfg BreakerConfig, backends ...Backend) (*Recognizer, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: at least one recognizer is required")
	}
	r := &Recognizer{}
	for _, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("resilience: recognizer %q is nil", b.Name)
		}
		bc := cfg
		bc.Name = b.Name
		r.backends = append(r.backends, guarded{name: b.Name, provider: b.Provider, breaker: NewBreaker(bc)})
	}
	return r, nil
}

// StartStream opens a session on the first healthy backend.
func (r *Recognizer) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var lastErr error
	for _, b := range r.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var sess stt.SessionHandle
		err := b.breaker.Do(func() error {
			var err error
			sess, err = b.provider.StartStream(ctx, cfg)
			return err
		})
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("resilience: skipping recognizer", "name", b.name)
			continue
		}
		slog.Warn("resilience: recognizer failed, trying next", "name", b.name, "err", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// States reports each backend's breaker state, in order.
func (r *Recognizer) States() map[string]State {
	out := make(map[string]State, len(r.backends))
	for _, b := range r.backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// Check fails when every backend's breaker is open. It is meant for
// readiness checks and makes no network calls.
func (r *Recognizer) Check(context.Context) error {
	for _, b := range r.backends {
		if b.breaker.State() != Open {
			return nil
		}
	}
	return fmt.Errorf("%w: every breaker is open", ErrAllFailed)
}
