// Package resilience implements the circuit breaker (C2) and retry
// executor (C3) that every remote call in the orchestrator goes through.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/metrics"
)

// State is one of the three circuit breaker states from spec.md section 4.2.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig configures a single circuit breaker. Zero values fall
// back to spec.md's stated defaults.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	Timeout          time.Duration // time spent open before a probe is allowed
	OnStateChange    func(name string, from, to State)
}

// DefaultBreakerConfig returns spec.md section 4.2's defaults:
// failure_threshold=5, success_threshold=2, timeout=60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Breaker guards calls to a single named remote dependency. All state
// transitions are serialized through mu, matching spec.md section 5's
// "per circuit breaker name, state transitions are linearizable".
type Breaker struct {
	name   string
	config BreakerConfig

	mu               sync.Mutex
	state            State
	consecutiveFails int
	consecutiveOK    int
	lastFailure      time.Time
	halfOpenInFlight bool

	totalCalls     uint64
	totalFailures  uint64
	totalSuccesses uint64
}

// NewBreaker creates a breaker in the CLOSED state.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	cfg.applyDefaults()
	return &Breaker{name: name, config: cfg, state: StateClosed}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of breaker counters, useful for monitoring.
type Stats struct {
	Name                string
	State               State
	ConsecutiveFailures int
	ConsecutiveSuccess  int
	TotalCalls          uint64
	TotalFailures       uint64
	TotalSuccesses      uint64
	LastFailure         time.Time
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFails,
		ConsecutiveSuccess:  b.consecutiveOK,
		TotalCalls:          b.totalCalls,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		LastFailure:         b.lastFailure,
	}
}

// Execute runs op through the breaker: it fails fast with CircuitOpen
// when open and the timeout has not elapsed, allows exactly one probe
// once the timeout elapses, and otherwise calls op and records the
// outcome per spec.md section 4.2's transition table.
func (b *Breaker) Execute(_ context.Context, op func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := op()
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.config.Timeout {
			return apperrors.CircuitOpen(b.name)
		}
		b.transition(StateHalfOpen)
		b.halfOpenInFlight = true
		return nil
	case StateHalfOpen:
		if b.halfOpenInFlight {
			return apperrors.CircuitOpen(b.name)
		}
		b.halfOpenInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false

	if success {
		b.totalSuccesses++
		switch b.state {
		case StateClosed:
			b.consecutiveFails = 0
		case StateHalfOpen:
			b.consecutiveOK++
			if b.consecutiveOK >= b.config.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.totalFailures++
	b.lastFailure = time.Now()
	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.consecutiveFails = 0
	b.consecutiveOK = 0
	if to == StateOpen {
		b.lastFailure = time.Now()
	}
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.name, from, to)
	}
}

// Registry lazily creates and serves named breakers, matching spec.md's
// "process-local, name-keyed, lazily created" requirement.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	configs  map[string]BreakerConfig
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty breaker registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		configs:  make(map[string]BreakerConfig),
	}
}

// WithMetrics attaches a Metrics recorder: every breaker the registry
// creates from this point on reports its state transitions as
// orchestrator_breaker_trips_total/orchestrator_breaker_state samples.
// Returns r for chaining at construction time.
func (r *Registry) WithMetrics(m *metrics.Metrics) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
	return r
}

// Configure sets the config used the first time name is requested. It is
// a no-op once the breaker for name already exists.
func (r *Registry) Configure(name string, cfg BreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.breakers[name]; exists {
		return
	}
	r.configs[name] = cfg
}

// Get returns the named breaker, creating it with its configured (or
// default) settings on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.configs[name]
	if !ok {
		cfg = DefaultBreakerConfig()
	}
	if m := r.metrics; m != nil {
		userHook := cfg.OnStateChange
		cfg.OnStateChange = func(name string, from, to State) {
			m.SetBreakerState(name, int(to))
			if to == StateOpen {
				m.RecordBreakerTrip(name)
			}
			if userHook != nil {
				userHook(name, from, to)
			}
		}
	}
	b := NewBreaker(name, cfg)
	r.breakers[name] = b
	return b
}

// Execute runs op through the named breaker, creating it if necessary.
func (r *Registry) Execute(ctx context.Context, name string, op func() error) error {
	return r.Get(name).Execute(ctx, op)
}

// AllStats returns a snapshot of every breaker currently tracked.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	breakers := make([]*Breaker, 0, len(r.breakers))
	for name, b := range r.breakers {
		names = append(names, name)
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(names))
	for i, name := range names {
		out[name] = breakers[i].Stats()
	}
	return out
}
