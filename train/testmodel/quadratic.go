// Package testmodel provides a small synthetic model that satisfies
// train.ModelExecutor. It stands in for an on-device runtime in the CLI
// and in tests.
package testmodel

import (
	"context"
	"fmt"

	"github.com/fwdtrain/fwdtrain/train"
)

// Quadratic has loss mean((w + eps*v - target)^2) * scale(input), where
// scale grows slightly with input length so different inputs give different
// but consistent losses.
//
// Thread-safety: NOT thread-safe.
type Quadratic struct {
	weights []float32
	target  []float32

	// failures injected into upcoming Loss calls, consumed in order.
	faults []error
}

// NewQuadratic creates a model whose weights start at 0 and whose optimum is
// target. target is copied.
func NewQuadratic(target []float32) *Quadratic {
	return &Quadratic{
		weights: make([]float32, len(target)),
		target:  append([]float32(nil), target...),
	}
}

// NewQuadraticFromSeed creates an n-parameter model whose target is drawn
// from train.Generate(seed, n).
func NewQuadraticFromSeed(seed train.Seed, n int) *Quadratic {
	return NewQuadratic(train.Generate(seed, n))
}

// Loss implements train.ModelExecutor.
func (q *Quadratic) Loss(ctx context.Context, input train.Encoding, perturbation []float32, epsilon float32) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(q.faults) > 0 {
		err := q.faults[0]
		q.faults = q.faults[1:]
		if err != nil {
			return 0, err
		}
	}
	if err := train.CheckDimensions(perturbation, len(q.weights)); err != nil {
		return 0, err
	}
	if len(q.weights) == 0 {
		return 0, nil
	}
	var sum float64
	for i, w := range q.weights {
		x := float64(w)
		if perturbation != nil {
			x += float64(epsilon) * float64(perturbation[i])
		}
		d := x - float64(q.target[i])
		sum += d * d
	}
	scale := 1 + float64(len(input))/1000
	return float32(sum / float64(len(q.weights)) * scale), nil
}

// ParameterCount implements train.ModelExecutor.
func (q *Quadratic) ParameterCount() int {
	return len(q.weights)
}

// Apply moves the weights along the perturbation direction:
// w -= learningRate * update * perturbation.
func (q *Quadratic) Apply(perturbation []float32, update, learningRate float32) error {
	if err := train.CheckDimensions(perturbation, len(q.weights)); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	for i, p := range perturbation {
		q.weights[i] -= learningRate * update * p
	}
	return nil
}

// ApplySeed regenerates the perturbation for seed and applies the update.
func (q *Quadratic) ApplySeed(seed train.Seed, update, learningRate float32) error {
	return q.Apply(train.Generate(seed, len(q.weights)), update, learningRate)
}

// InjectFaults queues errors returned by the next Loss calls; a nil entry
// lets that call through.
func (q *Quadratic) InjectFaults(errs ...error) {
	q.faults = append(q.faults, errs...)
}

// Weights returns a copy of the current weights.
func (q *Quadratic) Weights() []float32 {
	return append([]float32(nil), q.weights...)
}
