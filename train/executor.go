package train

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned by a ModelExecutor when a perturbation's
// length differs from its perturbable parameter count.
var ErrDimensionMismatch = errors.New("perturbation length does not match parameter count")

// Encoding is an opaque, already-tokenized model input.
type Encoding []int32

// ModelExecutor runs the model forward and reports a scalar loss.
// It is supplied by the host; the training core never loads or runs models itself.
type ModelExecutor interface {
	// Loss evaluates the model on input with parameters shifted by
	// epsilon*perturbation. A nil perturbation means the unperturbed model.
	Loss(ctx context.Context, input Encoding, perturbation []float32, epsilon float32) (float32, error)

	// ParameterCount is the number of perturbable parameters.
	ParameterCount() int
}

// Phase names which executor call of a step failed.
type Phase string

const (
	PhaseBaseline Phase = "baseline"
	PhasePlus     Phase = "plus"
	PhaseMinus    Phase = "minus"
)

// ExecutionError wraps an executor failure. It is the only error that makes
// the orchestrator report a failure to the admission policy.
type ExecutionError struct {
	Phase Phase
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("model execution failed (%s loss): %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CheckDimensions is a helper for ModelExecutor implementations.
func CheckDimensions(perturbation []float32, parameterCount int) error {
	if perturbation != nil && len(perturbation) != parameterCount {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(perturbation), parameterCount)
	}
	return nil
}
