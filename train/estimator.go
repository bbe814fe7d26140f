package train

import (
	"errors"
	"fmt"
)

// ErrInvalidEpsilon is returned by ValidateEpsilon for a non-positive epsilon.
var ErrInvalidEpsilon = errors.New("epsilon must be positive")

// ComputeUpdate turns an antithetic loss pair into a clipped scalar update:
//
//	rho = (lossPlus - lossMinus) / (2 * epsilon)
//	clamp(rho - baseline, -cap, cap)
//
// epsilon must be > 0; ComputeUpdate does not check it (see ValidateEpsilon).
func ComputeUpdate(lossPlus, lossMinus, epsilon, baseline, cap float32) float32 {
	return clampUpdate(FiniteDifference(lossPlus, lossMinus, epsilon)-baseline, cap)
}

// FiniteDifference returns the raw directional-derivative estimate before
// baseline subtraction and clipping.
func FiniteDifference(lossPlus, lossMinus, epsilon float32) float32 {
	return (lossPlus - lossMinus) / (2 * epsilon)
}

// ValidateEpsilon rejects the epsilon values ComputeUpdate leaves undefined.
func ValidateEpsilon(epsilon float32) error {
	if !(epsilon > 0) {
		return fmt.Errorf("%w, got %v", ErrInvalidEpsilon, epsilon)
	}
	return nil
}

func clampUpdate(v, cap float32) float32 {
	return min(max(v, -cap), cap)
}
