package ecs

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CircuitState mirrors the standard circuit-breaker state machine applied
// per-system (spec §4.8).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// RecoveryStrategy names how a system error should be handled (spec §4.8).
type RecoveryStrategy int

const (
	StrategySkip RecoveryStrategy = iota
	StrategyRetry
	StrategyDisable
	StrategyFallback
	StrategyIgnore
)

// SystemError records one failed system execution.
type SystemError struct {
	System string
	Tick   uint64
	Err    error
	At     time.Time
}

// SystemHealth is the per-system circuit-breaker record maintained by
// ErrorRecovery.
type SystemHealth struct {
	System          string
	State           CircuitState
	ConsecutiveErrs int
	TotalErrs       int
	LastError       error
	OpenedAt        time.Time
	NextRetryAt     time.Time
	Disabled        bool
}

// RecoveryPolicy configures how ErrorRecovery reacts to a system's failures.
type RecoveryPolicy struct {
	Strategy RecoveryStrategy
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens, whatever the strategy.
	FailureThreshold int
	// Backoff parameterizes the retry strategy's half-open cooldown.
	Backoff        backoff.BackOff
	Fallback       func(systemErr SystemError)
	MaxHistory     int
}

func (p RecoveryPolicy) backoffOrDefault() backoff.BackOff {
	if p.Backoff != nil {
		return p.Backoff
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = 0
	return eb
}

// ErrorRecovery implements the kernel's per-system circuit breaker (spec
// §4.8): it tracks consecutive/total failures per system, opens a circuit
// past FailureThreshold, and dispatches to the configured RecoveryStrategy.
type ErrorRecovery struct {
	mu sync.Mutex

	policies map[string]RecoveryPolicy
	health   map[string]*SystemHealth
	history  []SystemError

	defaultMaxHistory int
}

func newErrorRecovery(defaultMaxHistory int) *ErrorRecovery {
	if defaultMaxHistory <= 0 {
		defaultMaxHistory = 256
	}
	return &ErrorRecovery{
		policies:          make(map[string]RecoveryPolicy),
		health:            make(map[string]*SystemHealth),
		defaultMaxHistory: defaultMaxHistory,
	}
}

// SetPolicy installs or replaces the recovery policy for a named system.
func (r *ErrorRecovery) SetPolicy(system string, policy RecoveryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[system] = policy
}

func (r *ErrorRecovery) healthLocked(system string) *SystemHealth {
	h, ok := r.health[system]
	if !ok {
		h = &SystemHealth{System: system, State: CircuitClosed}
		r.health[system] = h
	}
	return h
}

// ShouldRun reports whether system is currently permitted to execute: false
// when its circuit is open and the retry cooldown has not yet elapsed.
func (r *ErrorRecovery) ShouldRun(system string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.healthLocked(system)
	if h.Disabled {
		return false
	}
	if h.State != CircuitOpen {
		return true
	}
	if !h.NextRetryAt.IsZero() && timeNow().After(h.NextRetryAt) {
		h.State = CircuitHalfOpen
		return true
	}
	return false
}

// timeNow is indirected so tests can stub time without the standard
// time.Now() call itself becoming untestable state.
var timeNow = time.Now

// RecordSuccess resets a system's consecutive-failure count and closes its
// circuit, whatever state it was in.
func (r *ErrorRecovery) RecordSuccess(system string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.healthLocked(system)
	h.ConsecutiveErrs = 0
	h.State = CircuitClosed
	h.NextRetryAt = time.Time{}
}

// RecordFailure records a system error, advances its circuit state, and
// returns the strategy the caller should act on plus the health record
// after the update. Fallback strategies invoke their configured callback
// here; skip/retry/disable are left for the scheduler to act on.
func (r *ErrorRecovery) RecordFailure(system string, tick uint64, err error) (RecoveryStrategy, SystemHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()

	policy, hasPolicy := r.policies[system]
	if !hasPolicy {
		policy = RecoveryPolicy{Strategy: StrategySkip, FailureThreshold: 1}
	}
	threshold := policy.FailureThreshold
	if threshold <= 0 {
		threshold = 1
	}

	h := r.healthLocked(system)
	h.ConsecutiveErrs++
	h.TotalErrs++
	h.LastError = err

	sysErr := SystemError{System: system, Tick: tick, Err: err, At: timeNow()}
	maxHistory := policy.MaxHistory
	if maxHistory <= 0 {
		maxHistory = r.defaultMaxHistory
	}
	r.history = append(r.history, sysErr)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}

	if h.ConsecutiveErrs >= threshold {
		switch policy.Strategy {
		case StrategyDisable:
			h.Disabled = true
			h.State = CircuitOpen
		case StrategyRetry:
			h.State = CircuitOpen
			h.OpenedAt = sysErr.At
			h.NextRetryAt = sysErr.At.Add(policy.backoffOrDefault().NextBackOff())
		default:
			h.State = CircuitOpen
			h.OpenedAt = sysErr.At
		}
	}

	if policy.Strategy == StrategyFallback && policy.Fallback != nil {
		policy.Fallback(sysErr)
	}

	return policy.Strategy, *h
}

// Health returns a snapshot of a system's current health record.
func (r *ErrorRecovery) Health(system string) SystemHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.healthLocked(system)
}

// AllHealth returns a snapshot of every tracked system's health.
func (r *ErrorRecovery) AllHealth() []SystemHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SystemHealth, 0, len(r.health))
	for _, h := range r.health {
		out = append(out, *h)
	}
	return out
}

// History returns a snapshot of the bounded recent-error ring.
func (r *ErrorRecovery) History() []SystemError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SystemError, len(r.history))
	copy(out, r.history)
	return out
}

// Reset clears a system's circuit state back to closed, e.g. after an
// operator manually re-enables a disabled system.
func (r *ErrorRecovery) Reset(system string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[system] = &SystemHealth{System: system, State: CircuitClosed}
}

// HealthReport summarizes engine-wide system health for observability.
type HealthReport struct {
	TotalSystems    int
	OpenCircuits    int
	DisabledSystems int
	TotalErrors     int
	Systems         []SystemHealth
}

// Report builds a HealthReport from the current state of every tracked
// system.
func (r *ErrorRecovery) Report() HealthReport {
	all := r.AllHealth()
	report := HealthReport{TotalSystems: len(all), Systems: all}
	for _, h := range all {
		if h.State == CircuitOpen {
			report.OpenCircuits++
		}
		if h.Disabled {
			report.DisabledSystems++
		}
		report.TotalErrors += h.TotalErrs
	}
	return report
}
