package train

// BaselineTracker keeps an exponential moving average of raw finite-difference
// estimates, used as the control variate subtracted from each update.
type BaselineTracker struct {
	beta  float64
	value float64
	count uint64
}

// NewBaselineTracker creates a tracker starting at 0. beta is the weight kept
// on the previous average (0.9 keeps 90%).
func NewBaselineTracker(beta float64) *BaselineTracker {
	return &BaselineTracker{beta: beta}
}

// Observe folds rho into the average and returns the new baseline.
func (b *BaselineTracker) Observe(rho float32) float32 {
	b.value = b.beta*b.value + (1-b.beta)*float64(rho)
	b.count++
	return float32(b.value)
}

// Value returns the current baseline.
func (b *BaselineTracker) Value() float32 {
	return float32(b.value)
}

// Count returns how many estimates have been observed.
func (b *BaselineTracker) Count() uint64 {
	return b.count
}

// Reset zeroes the average.
func (b *BaselineTracker) Reset() {
	b.value = 0
	b.count = 0
}
