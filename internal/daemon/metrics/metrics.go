// Package metrics is an in-process counters/gauges/histogram registry
// surfaced only through daemon.status and internal introspection. No
// HTTP/Prometheus exposition exists here — wiring one is explicitly out
// of scope for this daemon.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// latencyBuckets are the fixed histogram bucket upper bounds, in
// milliseconds, used for adapter discover latency.
var latencyBuckets = []int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Registry holds every counter/gauge the daemon's subsystems update.
type Registry struct {
	sessionsTracked   int64
	rpcRequests       int64
	rpcErrors         int64
	adapterFailures   int64
	locksAcquired     int64
	locksReleased     int64
	fusesArmed        int64
	fusesFired        int64
	fusesCancelled    int64

	mu              sync.Mutex
	rpcErrorsByCode map[string]int64
	discoverLatency map[string][]int64 // adapter -> bucket counts, parallel to latencyBuckets
	startedAt       time.Time
}

// New creates an empty Registry, stamped with the process start time.
func New(startedAt time.Time) *Registry {
	return &Registry{
		rpcErrorsByCode: make(map[string]int64),
		discoverLatency: make(map[string][]int64),
		startedAt:       startedAt,
	}
}

func (r *Registry) IncSessionsTracked(delta int64)  { atomic.AddInt64(&r.sessionsTracked, delta) }
func (r *Registry) IncRPCRequests()                 { atomic.AddInt64(&r.rpcRequests, 1) }
func (r *Registry) IncAdapterFailures()             { atomic.AddInt64(&r.adapterFailures, 1) }
func (r *Registry) IncLocksAcquired()               { atomic.AddInt64(&r.locksAcquired, 1) }
func (r *Registry) IncLocksReleased()               { atomic.AddInt64(&r.locksReleased, 1) }
func (r *Registry) IncFusesArmed()                  { atomic.AddInt64(&r.fusesArmed, 1) }
func (r *Registry) IncFusesFired()                  { atomic.AddInt64(&r.fusesFired, 1) }
func (r *Registry) IncFusesCancelled()              { atomic.AddInt64(&r.fusesCancelled, 1) }

// IncRPCError records an RPC failure under code.
func (r *Registry) IncRPCError(code string) {
	atomic.AddInt64(&r.rpcErrors, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rpcErrorsByCode[code]++
}

// ObserveDiscoverLatency records one adapter discover() call's duration
// into the fixed bucket scheme.
func (r *Registry) ObserveDiscoverLatency(adapter string, d time.Duration) {
	ms := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	counts, ok := r.discoverLatency[adapter]
	if !ok {
		counts = make([]int64, len(latencyBuckets)+1)
		r.discoverLatency[adapter] = counts
	}
	for i, upper := range latencyBuckets {
		if ms <= upper {
			counts[i]++
			return
		}
	}
	counts[len(latencyBuckets)]++ // overflow bucket
}

// Snapshot is the point-in-time view returned by daemon.status.
type Snapshot struct {
	UptimeSeconds    float64                    `json:"uptimeSeconds"`
	SessionsTracked  int64                      `json:"sessionsTracked"`
	RPCRequests      int64                      `json:"rpcRequests"`
	RPCErrors        int64                      `json:"rpcErrors"`
	RPCErrorsByCode  map[string]int64           `json:"rpcErrorsByCode"`
	AdapterFailures  int64                      `json:"adapterFailures"`
	LocksAcquired    int64                      `json:"locksAcquired"`
	LocksReleased    int64                      `json:"locksReleased"`
	FusesArmed       int64                      `json:"fusesArmed"`
	FusesFired       int64                      `json:"fusesFired"`
	FusesCancelled   int64                      `json:"fusesCancelled"`
	DiscoverLatency  map[string]map[int64]int64 `json:"discoverLatencyMs"`
}

// Snapshot renders the current state of every counter/gauge/histogram.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	errByCode := make(map[string]int64, len(r.rpcErrorsByCode))
	for k, v := range r.rpcErrorsByCode {
		errByCode[k] = v
	}

	latency := make(map[string]map[int64]int64, len(r.discoverLatency))
	for adapter, counts := range r.discoverLatency {
		buckets := make(map[int64]int64, len(counts))
		for i, c := range counts {
			if i < len(latencyBuckets) {
				buckets[latencyBuckets[i]] = c
			} else {
				buckets[-1] = c // overflow
			}
		}
		latency[adapter] = buckets
	}

	return Snapshot{
		UptimeSeconds:   time.Since(r.startedAt).Seconds(),
		SessionsTracked: atomic.LoadInt64(&r.sessionsTracked),
		RPCRequests:     atomic.LoadInt64(&r.rpcRequests),
		RPCErrors:       atomic.LoadInt64(&r.rpcErrors),
		RPCErrorsByCode: errByCode,
		AdapterFailures: atomic.LoadInt64(&r.adapterFailures),
		LocksAcquired:   atomic.LoadInt64(&r.locksAcquired),
		LocksReleased:   atomic.LoadInt64(&r.locksReleased),
		FusesArmed:      atomic.LoadInt64(&r.fusesArmed),
		FusesFired:      atomic.LoadInt64(&r.fusesFired),
		FusesCancelled:  atomic.LoadInt64(&r.fusesCancelled),
		DiscoverLatency: latency,
	}
}

// SortedAdapterNames is a small helper for CLI/status rendering so
// output is deterministic across runs.
func (r *Registry) SortedAdapterNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.discoverLatency))
	for name := range r.discoverLatency {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
