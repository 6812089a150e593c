package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Default circuit breaker and rate limiter settings, per adapter.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
	defaultRateLimit     rate.Limit    = 1 // one discover() per second
	defaultRateBurst     int           = 1
)

// entry bundles a registered adapter with its own circuit breaker and
// rate limiter, so a consistently failing adapter stops being hammered
// every list cycle without affecting its siblings.
type entry struct {
	adapter Adapter
	breaker *gobreaker.CircuitBreaker[[]model.DiscoveredSession]
	limiter *rate.Limiter
}

// Registry is a pure lookup table from adapter name to its wrapped
// entry. Built once at boot; adapter instances are not reloaded.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *logrus.Entry
}

// New creates an empty Registry.
func New(log *logrus.Entry) *Registry {
	return &Registry{entries: make(map[string]*entry), log: log}
}

// Register adds adapter to the registry, wrapping its Discover in a
// circuit breaker and rate limiter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	cb := gobreaker.NewCircuitBreaker[[]model.DiscoveredSession](gobreaker.Settings{
		Name:        "adapter:" + name,
		MaxRequests: 1,
		Interval:    defaultCBInterval,
		Timeout:     defaultCBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultCBMaxFailures
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			r.log.WithFields(logrus.Fields{
				"breaker": breakerName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("adapter circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	r.entries[name] = &entry{
		adapter: a,
		breaker: cb,
		limiter: rate.NewLimiter(defaultRateLimit, defaultRateBurst),
	}
}

// Get returns the named adapter's entry, or AdapterUnknown.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.AdapterUnknown(name)
	}
	return e.adapter, nil
}

// Names returns every registered adapter name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

// DiscoverResult pairs one adapter's outcome for the fan-out in
// session.list.
type DiscoverResult struct {
	Adapter  string
	Sessions []model.DiscoveredSession
	Err      error
}

// FanOutDiscover calls Discover on every registered adapter
// concurrently, bounding each call with timeout and the adapter's own
// rate limiter and circuit breaker. Failures (timeout, breaker open,
// rate-limited, adapter error) are reported per-adapter in the result
// rather than failing the whole call.
func (r *Registry) FanOutDiscover(ctx context.Context, timeout time.Duration) []DiscoverResult {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	results := make(chan DiscoverResult, len(entries))
	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			results <- r.discoverOne(ctx, e, timeout)
		}(e)
	}
	wg.Wait()
	close(results)

	out := make([]DiscoverResult, 0, len(entries))
	for res := range results {
		out = append(out, res)
	}
	return out
}

func (r *Registry) discoverOne(ctx context.Context, e *entry, timeout time.Duration) DiscoverResult {
	name := e.adapter.Name()

	if err := e.limiter.Wait(ctx); err != nil {
		return DiscoverResult{Adapter: name, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sessions, err := e.breaker.Execute(func() ([]model.DiscoveredSession, error) {
		return e.adapter.Discover(callCtx)
	})
	if err != nil {
		if callCtx.Err() != nil {
			err = errors.AdapterTimeout(name, "discover", timeout.String())
		}
		return DiscoverResult{Adapter: name, Err: err}
	}
	return DiscoverResult{Adapter: name, Sessions: sessions}
}

// Discover performs a single adapter's discover(), used by the session
// tracker's pending-id resolution paths (outside the list fan-out,
// hence still floored by the adapter's rate limiter).
func (r *Registry) Discover(ctx context.Context, adapterName string) ([]model.DiscoveredSession, error) {
	r.mu.RLock()
	e, ok := r.entries[adapterName]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.AdapterUnknown(adapterName)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.breaker.Execute(func() ([]model.DiscoveredSession, error) {
		return e.adapter.Discover(ctx)
	})
}

// WarningFor renders a DiscoverResult's failure as the warning string
// format used in session.list's warnings field.
func WarningFor(r DiscoverResult) string {
	return fmt.Sprintf("adapter %s: %v", r.Adapter, r.Err)
}
