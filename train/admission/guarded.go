package admission

import "sync"

// State is a point-in-time copy of a Policy's mutable fields.
type State struct {
	Mode                Mode   `json:"mode"`
	ConsecutiveFailures uint   `json:"consecutive_failures"`
	NextAllowedRunTime  uint64 `json:"next_allowed_run_time"`
}

// Guarded serializes every operation on a Policy behind one mutex, so the
// whole read-decide-mutate sequence of each call is atomic. Use it when steps
// and telemetry callbacks can arrive on different goroutines.
type Guarded struct {
	mu     sync.Mutex
	policy *Policy
}

// NewGuarded wraps p. p must not be used directly afterwards.
func NewGuarded(p *Policy) *Guarded {
	return &Guarded{policy: p}
}

// ShouldRun is Policy.ShouldRun under the lock.
func (g *Guarded) ShouldRun(tempC, batteryPercent float32, isCharging bool, now uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy.ShouldRun(tempC, batteryPercent, isCharging, now)
}

// Decide is Policy.Decide under the lock.
func (g *Guarded) Decide(tempC, batteryPercent float32, isCharging bool, now uint64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy.Decide(tempC, batteryPercent, isCharging, now)
}

// ReportSuccess is Policy.ReportSuccess under the lock.
func (g *Guarded) ReportSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy.ReportSuccess()
}

// ReportFailure is Policy.ReportFailure under the lock.
func (g *Guarded) ReportFailure(now uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy.ReportFailure(now)
}

// Reset is Policy.Reset under the lock.
func (g *Guarded) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy.Reset()
}

// Snapshot returns a consistent copy of the policy state.
func (g *Guarded) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy.Snapshot()
}

// Snapshot returns a copy of the policy state.
func (p *Policy) Snapshot() State {
	return State{
		Mode:                p.mode,
		ConsecutiveFailures: p.consecutiveFailures,
		NextAllowedRunTime:  p.nextAllowedRunTime,
	}
}
