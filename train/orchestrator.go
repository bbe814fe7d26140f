package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fwdtrain/fwdtrain/train/admission"
	"github.com/fwdtrain/fwdtrain/train/telemetry"
	"github.com/fwdtrain/fwdtrain/train/trace"
)

// Gate is the admission surface the orchestrator needs.
// Both *admission.Policy and *admission.Guarded satisfy it.
type Gate interface {
	Decide(tempC, batteryPercent float32, isCharging bool, now uint64) (bool, string)
	ReportSuccess()
	ReportFailure(now uint64)
	Snapshot() admission.State
}

// Outcome classifies a candidate step.
type Outcome string

const (
	// OutcomeSkipped means admission denied the step; no gradient work ran.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCompleted means the update scalar was produced.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means an admitted step returned an error.
	OutcomeFailed Outcome = "failed"
)

// StepInput is everything one candidate step needs from the host.
type StepInput struct {
	Telemetry telemetry.Sample
	Input     Encoding
	// Seed overrides the schedule when set.
	Seed *Seed
	// Baseline overrides the tracked control variate when set.
	Baseline *float32
}

// StepResult describes one candidate step.
type StepResult struct {
	ID        string  `json:"id"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"` // denial reason when skipped
	Seed      Seed    `json:"seed"`
	Epsilon   float32 `json:"epsilon"`
	Loss      float32 `json:"loss"` // unperturbed loss
	LossPlus  float32 `json:"loss_plus"`
	LossMinus float32 `json:"loss_minus"`
	RawRho    float32 `json:"raw_rho"`
	Baseline  float32 `json:"baseline"`
	Update    float32 `json:"update"`
}

// Deps are the collaborators of an Orchestrator. Metrics and Trace are optional.
type Deps struct {
	Gate     Gate
	Executor ModelExecutor
	Metrics  *Metrics
	Trace    *trace.TrainingTrace
}

// Orchestrator runs candidate training steps one at a time:
// admission, loss pair, update estimate, and outcome reporting.
//
// Thread-safety: NOT thread-safe. Steps are expected to run to completion
// before the next one starts.
type Orchestrator struct {
	gate     Gate
	executor ModelExecutor
	metrics  *Metrics
	trace    *trace.TrainingTrace
	tracer   oteltrace.Tracer

	seeds    *SeedSchedule
	epsilon  EpsilonSchedule
	baseline *BaselineTracker
	cap      float32

	deriveMinus  bool
	failOnCancel bool

	completed uint64
}

// NewOrchestrator validates cfg and wires the step pipeline.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Gate == nil {
		return nil, errors.New("admission gate is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("model executor is required")
	}
	return &Orchestrator{
		gate:         deps.Gate,
		executor:     deps.Executor,
		metrics:      deps.Metrics,
		trace:        deps.Trace,
		tracer:       otel.Tracer("github.com/fwdtrain/fwdtrain/train"),
		seeds:        NewSeedSchedule(Seed(cfg.MasterSeed), cfg.SeedList()),
		epsilon:      cfg.EpsilonSchedule(),
		baseline:     NewBaselineTracker(cfg.BaselineBeta),
		cap:          cfg.Cap,
		deriveMinus:  cfg.DeriveMinus,
		failOnCancel: cfg.FailOnCancel,
	}, nil
}

// Step runs one candidate step.
//
// A denied step returns OutcomeSkipped and a nil error. An executor error is
// reported to the gate as a failure and returned as *ExecutionError. A
// cancelled context is returned as-is and only counts as a failure when
// FailOnCancel is configured.
func (o *Orchestrator) Step(ctx context.Context, in StepInput) (StepResult, error) {
	ctx, span := o.tracer.Start(ctx, "train.Step")
	defer span.End()

	res := StepResult{ID: uuid.NewString()}
	now := in.Telemetry.Now

	allowed, reason := o.gate.Decide(in.Telemetry.TempC, in.Telemetry.BatteryPercent, in.Telemetry.Charging, now)
	st := o.gate.Snapshot()
	o.trace.RecordAdmission(trace.AdmissionRecord{
		StepID:         res.ID,
		Clock:          now,
		TempC:          in.Telemetry.TempC,
		BatteryPercent: in.Telemetry.BatteryPercent,
		Admitted:       allowed,
		Reason:         reason,
		Mode:           st.Mode.String(),
	})
	if !allowed {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		o.finish(span, res, st, nil)
		logrus.WithFields(logrus.Fields{"step": res.ID, "reason": reason}).Debug("step skipped")
		return res, nil
	}

	err := o.run(ctx, in, &res)
	if err != nil {
		res.Outcome = OutcomeFailed
		if o.countsAsFailure(err) {
			o.gate.ReportFailure(now)
		}
		o.trace.RecordStep(o.stepRecord(res, now, err))
		st = o.gate.Snapshot()
		o.finish(span, res, st, err)
		logrus.WithFields(logrus.Fields{
			"step":     res.ID,
			"seed":     res.Seed,
			"failures": st.ConsecutiveFailures,
		}).Warnf("step failed: %v", err)
		return res, err
	}

	o.gate.ReportSuccess()
	o.completed++
	res.Outcome = OutcomeCompleted
	o.trace.RecordStep(o.stepRecord(res, now, nil))
	o.finish(span, res, o.gate.Snapshot(), nil)
	logrus.WithFields(logrus.Fields{
		"step":   res.ID,
		"seed":   res.Seed,
		"loss":   res.Loss,
		"update": res.Update,
	}).Info("step completed")
	return res, nil
}

// run executes the gradient path of an admitted step and fills res.
func (o *Orchestrator) run(ctx context.Context, in StepInput, res *StepResult) error {
	res.Epsilon = o.epsilon.At(o.completed)
	if err := ValidateEpsilon(res.Epsilon); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	loss0, err := o.executor.Loss(ctx, in.Input, nil, 0)
	if err != nil {
		return &ExecutionError{Phase: PhaseBaseline, Err: err}
	}
	res.Loss = loss0

	if in.Seed != nil {
		res.Seed = *in.Seed
	} else {
		res.Seed = o.seeds.Next()
	}
	v := Generate(res.Seed, o.executor.ParameterCount())

	if err := ctx.Err(); err != nil {
		return err
	}
	res.LossPlus, err = o.executor.Loss(ctx, in.Input, v, res.Epsilon)
	if err != nil {
		return &ExecutionError{Phase: PhasePlus, Err: err}
	}

	if o.deriveMinus {
		res.LossMinus = 2*loss0 - res.LossPlus
	} else {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.LossMinus, err = o.executor.Loss(ctx, in.Input, v, -res.Epsilon)
		if err != nil {
			return &ExecutionError{Phase: PhaseMinus, Err: err}
		}
	}

	res.RawRho = FiniteDifference(res.LossPlus, res.LossMinus, res.Epsilon)
	if in.Baseline != nil {
		res.Baseline = *in.Baseline
	} else {
		res.Baseline = o.baseline.Observe(res.RawRho)
	}
	res.Update = ComputeUpdate(res.LossPlus, res.LossMinus, res.Epsilon, res.Baseline, o.cap)
	return nil
}

// countsAsFailure reports whether err should extend the admission backoff.
// Executor failures always do; cancellation only when configured.
func (o *Orchestrator) countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return o.failOnCancel
	}
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}

func (o *Orchestrator) stepRecord(res StepResult, now uint64, err error) trace.StepRecord {
	rec := trace.StepRecord{
		StepID:    res.ID,
		Clock:     now,
		Seed:      uint64(res.Seed),
		Epsilon:   res.Epsilon,
		Loss:      res.Loss,
		LossPlus:  res.LossPlus,
		LossMinus: res.LossMinus,
		RawRho:    res.RawRho,
		Baseline:  res.Baseline,
		Update:    res.Update,
	}
	if err != nil {
		rec.Failed = true
		rec.Error = err.Error()
	}
	return rec
}

func (o *Orchestrator) finish(span oteltrace.Span, res StepResult, st admission.State, err error) {
	o.metrics.observeStep(res)
	o.metrics.observeAdmission(st)
	span.SetAttributes(
		attribute.String("fwdtrain.outcome", string(res.Outcome)),
		attribute.String("fwdtrain.admission.mode", st.Mode.String()),
		attribute.Int64("fwdtrain.admission.failures", int64(st.ConsecutiveFailures)),
	)
	if res.Outcome == OutcomeCompleted {
		span.SetAttributes(
			attribute.Int64("fwdtrain.seed", int64(res.Seed)),
			attribute.Float64("fwdtrain.update", float64(res.Update)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// CompletedSteps returns how many steps have completed successfully.
func (o *Orchestrator) CompletedSteps() uint64 {
	return o.completed
}

// Baseline returns the tracked control variate.
func (o *Orchestrator) Baseline() float32 {
	return o.baseline.Value()
}

// SetSeeds installs a new round's seed list.
func (o *Orchestrator) SetSeeds(seeds []Seed) {
	o.seeds.SetSeeds(seeds)
}

// Describe formats a result for log lines and CLI output.
func (r StepResult) Describe() string {
	if r.Outcome == OutcomeSkipped {
		return fmt.Sprintf("%s skipped (%s)", r.ID, r.Reason)
	}
	return fmt.Sprintf("%s %s seed=%d eps=%g loss=%g update=%g", r.ID, r.Outcome, r.Seed, r.Epsilon, r.Loss, r.Update)
}
