package ml

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrModelUnavailable wraps every Unavailable outcome so callers can map it
// to a service-unavailable response.
var ErrModelUnavailable = errors.New("model unavailable")

// Status is the tagged outcome of EnsureLoaded.
type Status int

const (
	Unavailable Status = iota
	Ready
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "unavailable"
}

// Availability carries a ready handle or the reason none is available.
type Availability struct {
	Status Status
	Handle *Handle
	Err    error
}

// Error converts an Unavailable result into an error wrapping
// ErrModelUnavailable and the underlying load error.
func (a Availability) Error(id string) error {
	if a.Status == Ready {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, id, a.Err)
}

// LoadObserver is notified after each load attempt.
type LoadObserver func(id string, err error)

// Guard makes sure a model is loaded before use. A model never moves back
// to unloaded on its own; failed reloads keep the previous handle.
type Guard struct {
	store    *Store
	group    singleflight.Group
	logger   *zap.Logger
	observer LoadObserver
}

// NewGuard wraps store.
func NewGuard(store *Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, logger: logger.Named("guard")}
}

// OnLoad registers an observer for load attempts.
func (g *Guard) OnLoad(fn LoadObserver) {
	g.observer = fn
}

// Store returns the wrapped store.
func (g *Guard) Store() *Store {
	return g.store
}

// EnsureLoaded returns Ready with the current handle, loading it first when
// nothing has been published yet. Concurrent callers share one load.
func (g *Guard) EnsureLoaded(ctx context.Context, id string) Availability {
	if h := g.store.Current(id); h != nil {
		return Availability{Status: Ready, Handle: h}
	}
	h, err := g.load(ctx, id)
	if err != nil {
		return Availability{Status: Unavailable, Err: err}
	}
	return Availability{Status: Ready, Handle: h}
}

// Reload forces a fresh load of id. It never joins a load already in
// flight, which may have read the artifact before it changed. A failed
// reload leaves the previously published handle serving requests.
func (g *Guard) Reload(ctx context.Context, id string) error {
	g.group.Forget(id)
	_, err := g.load(ctx, id)
	return err
}

// LoadAll attempts every configured model once, best effort.
func (g *Guard) LoadAll(ctx context.Context) {
	for _, id := range g.store.IDs() {
		if err := g.Reload(ctx, id); err != nil {
			g.logger.Warn("initial model load failed", zap.String("model", id), zap.Error(err))
		}
	}
}

func (g *Guard) load(ctx context.Context, id string) (*Handle, error) {
	ch := g.group.DoChan(id, func() (any, error) {
		h, err := g.store.Load(id)
		if g.observer != nil {
			g.observer(id, err)
		}
		return h, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

// Health is the report served by model health endpoints.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Error       string `json:"error,omitempty"`
}

// Health ensures id is loaded and reports it. A model that is still serving
// an older handle after a failed reload is reported unhealthy.
func (g *Guard) Health(ctx context.Context, id string) Health {
	avail := g.EnsureLoaded(ctx, id)
	if avail.Status != Ready {
		return Health{Status: "unhealthy", ModelLoaded: false, Error: avail.Error(id).Error()}
	}
	if last := g.store.LastAttempt(id); last != nil && last.Err != nil {
		return Health{Status: "unhealthy", ModelLoaded: true, Error: last.Err.Error()}
	}
	return Health{Status: "healthy", ModelLoaded: true}
}
