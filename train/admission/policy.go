// Package admission gates training steps on device thermal and battery state.
//
// A Policy is a small state machine (Nominal, Cooldown) with a failure counter
// and an exponential "do not run before" timestamp. It is owned by the host and
// passed explicitly to whatever runs training steps; there is no package-level
// instance.
package admission

import (
	"math"
	"math/bits"

	"github.com/sirupsen/logrus"
)

// Mode is the thermal mode of a Policy.
type Mode int

const (
	// Nominal admits steps while the device stays at or below the high threshold.
	Nominal Mode = iota
	// Cooldown denies steps until the device drops below the low threshold.
	Cooldown
)

// String returns the human-readable mode name.
func (m Mode) String() string {
	switch m {
	case Nominal:
		return "nominal"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Denial reasons returned by Decide. An empty reason means the step was admitted.
const (
	ReasonBatteryLow      = "battery below floor"
	ReasonBackoff         = "backoff window active"
	ReasonCooldownEntered = "temperature above high threshold"
	ReasonCooldownOngoing = "cooling down"
)

// Thresholds parameterizes a Policy. Temperatures are in Celsius, battery in
// percent, backoff durations in seconds.
type Thresholds struct {
	BatteryFloor float32 // deny below this battery level
	HighTempC    float32 // Nominal -> Cooldown when temperature exceeds this
	LowTempC     float32 // Cooldown -> Nominal when temperature falls below this
	BaseBackoff  uint64  // backoff after n consecutive failures is BaseBackoff * 2^n
	MaxBackoff   uint64  // 0 = unbounded
}

// DefaultThresholds returns the standard device thresholds: 20% battery floor,
// a 38/35 C hysteresis band and a 10 minute base backoff with no ceiling.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BatteryFloor: 20.0,
		HighTempC:    38.0,
		LowTempC:     35.0,
		BaseBackoff:  600,
	}
}

// Policy decides whether a training step may run now.
//
// Thread-safety: NOT thread-safe. Callers must serialize ShouldRun,
// ReportSuccess, ReportFailure and Reset (see Guarded).
type Policy struct {
	thresholds Thresholds

	mode                Mode
	consecutiveFailures uint
	nextAllowedRunTime  uint64 // Unix seconds; 0 = no backoff
}

// New creates a Policy with DefaultThresholds in Nominal mode.
func New() *Policy {
	return NewWithThresholds(DefaultThresholds())
}

// NewWithThresholds creates a Policy in Nominal mode with custom thresholds.
func NewWithThresholds(th Thresholds) *Policy {
	return &Policy{thresholds: th, mode: Nominal}
}

// ShouldRun reports whether a step may run given current telemetry.
// isCharging is accepted but does not currently influence the decision.
func (p *Policy) ShouldRun(tempC, batteryPercent float32, isCharging bool, now uint64) bool {
	allowed, _ := p.Decide(tempC, batteryPercent, isCharging, now)
	return allowed
}

// Decide is ShouldRun with the denial reason. Checks are applied in order:
// battery floor, backoff window, then thermal hysteresis. Only the
// hysteresis step may change the mode.
func (p *Policy) Decide(tempC, batteryPercent float32, _ bool, now uint64) (allowed bool, reason string) {
	if batteryPercent < p.thresholds.BatteryFloor {
		return false, ReasonBatteryLow
	}
	if now < p.nextAllowedRunTime {
		return false, ReasonBackoff
	}

	switch p.mode {
	case Nominal:
		if tempC > p.thresholds.HighTempC {
			p.mode = Cooldown
			logrus.Debugf("admission: entering cooldown at %.1fC (threshold %.1fC)", tempC, p.thresholds.HighTempC)
			return false, ReasonCooldownEntered
		}
		return true, ""
	default:
		if tempC < p.thresholds.LowTempC {
			p.mode = Nominal
			logrus.Debugf("admission: cooldown finished at %.1fC (threshold %.1fC)", tempC, p.thresholds.LowTempC)
			return true, ""
		}
		return false, ReasonCooldownOngoing
	}
}

// ReportSuccess clears the failure counter and the backoff window.
// Call only after an admitted step completed without error.
func (p *Policy) ReportSuccess() {
	p.consecutiveFailures = 0
	p.nextAllowedRunTime = 0
}

// ReportFailure records a failed step at now and extends the backoff window to
// now + BaseBackoff*2^failures. The exponent counts the failure just recorded,
// so the first failure already waits 2*BaseBackoff.
func (p *Policy) ReportFailure(now uint64) {
	p.consecutiveFailures++
	backoff := BackoffFor(p.thresholds.BaseBackoff, p.consecutiveFailures, p.thresholds.MaxBackoff)
	next, carry := bits.Add64(now, backoff, 0)
	if carry != 0 {
		next = math.MaxUint64
	}
	p.nextAllowedRunTime = next
	logrus.Debugf("admission: failure #%d, backoff %ds, next run at %d", p.consecutiveFailures, backoff, next)
}

// Reset restores the initial state: Nominal, no failures, no backoff.
func (p *Policy) Reset() {
	p.mode = Nominal
	p.consecutiveFailures = 0
	p.nextAllowedRunTime = 0
}

// Mode returns the current thermal mode.
func (p *Policy) Mode() Mode { return p.mode }

// ConsecutiveFailures returns the number of failures since the last success or reset.
func (p *Policy) ConsecutiveFailures() uint { return p.consecutiveFailures }

// NextAllowedRunTime returns the earliest Unix second at which a step may run.
func (p *Policy) NextAllowedRunTime() uint64 { return p.nextAllowedRunTime }

// Thresholds returns the policy's configuration.
func (p *Policy) Thresholds() Thresholds { return p.thresholds }

// BackoffFor returns base * 2^failures seconds, saturating at math.MaxUint64
// and capped at ceiling when ceiling > 0.
func BackoffFor(base uint64, failures uint, ceiling uint64) uint64 {
	var backoff uint64
	if failures >= 64 {
		backoff = math.MaxUint64
		if base == 0 {
			backoff = 0
		}
	} else {
		hi, lo := bits.Mul64(base, uint64(1)<<failures)
		backoff = lo
		if hi != 0 {
			backoff = math.MaxUint64
		}
	}
	if ceiling > 0 && backoff > ceiling {
		backoff = ceiling
	}
	return backoff
}
