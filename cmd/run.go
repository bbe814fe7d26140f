package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fwdtrain/fwdtrain/train"
	"github.com/fwdtrain/fwdtrain/train/admission"
	"github.com/fwdtrain/fwdtrain/train/ledger"
	"github.com/fwdtrain/fwdtrain/train/telemetry"
	"github.com/fwdtrain/fwdtrain/train/testmodel"
	"github.com/fwdtrain/fwdtrain/train/trace"
	"github.com/fwdtrain/fwdtrain/train/upload"
)

// runOptions carries everything `fwdtrain run` needs.
type runOptions struct {
	ConfigPath    string
	TelemetryPath string
	LedgerPath    string
	MetricsPath   string
	SpansPath     string
	TraceLevel    trace.TraceLevel

	Steps        int
	Params       int
	InputTokens  int
	ModelSeed    uint64
	LearningRate float32

	// Static and Interval drive telemetry when TelemetryPath is empty.
	Static   telemetry.Sample
	Interval uint64
}

// runSummary is printed as JSON at the end of a run.
type runSummary struct {
	RunID       string              `json:"run_id"`
	Attempted   int                 `json:"attempted"`
	Completed   int                 `json:"completed"`
	Skipped     int                 `json:"skipped"`
	Failed      int                 `json:"failed"`
	InitialLoss float32             `json:"initial_loss"`
	FinalLoss   float32             `json:"final_loss"`
	Baseline    float32             `json:"baseline"`
	Admission   admission.State     `json:"admission"`
	Uploads     int                 `json:"uploads"`
	PublicKey   string              `json:"public_key,omitempty"`
	Trace       *trace.TraceSummary `json:"trace,omitempty"`
}

// loadConfig reads the YAML config (or defaults), applies FWDTRAIN_* overrides
// and validates the result.
func loadConfig(path string) (train.Config, error) {
	cfg := train.DefaultConfig()
	if path != "" {
		loaded, err := train.LoadConfig(path)
		if err != nil {
			return train.Config{}, err
		}
		cfg = *loaded
	}
	if err := train.ApplyEnv(&cfg); err != nil {
		return train.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return train.Config{}, err
	}
	return cfg, nil
}

// installSpanExporter routes step spans to a JSON file and returns the
// shutdown func that flushes it.
func installSpanExporter(path string) (func(context.Context) error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating span file: %w", err)
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return func(ctx context.Context) error {
		defer otel.SetTracerProvider(prev)
		err := tp.Shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// telemetryProvider picks the script when given, otherwise a fixed reading
// that is frozen (Interval 0) or advances its clock every sample.
func telemetryProvider(opts runOptions) (telemetry.Provider, error) {
	switch {
	case opts.TelemetryPath != "":
		return telemetry.LoadScript(opts.TelemetryPath)
	case opts.Interval == 0:
		return telemetry.Static(opts.Static), nil
	default:
		return &telemetry.Clocked{Base: opts.Static, Interval: opts.Interval}, nil
	}
}

// runTraining attempts opts.Steps candidate steps against a synthetic
// quadratic model, applying every completed update to the model and, when a
// ledger is configured, recording a signed upload for it.
func runTraining(ctx context.Context, opts runOptions) (*runSummary, error) {
	if opts.Steps < 0 {
		return nil, fmt.Errorf("steps must be >= 0, got %d", opts.Steps)
	}
	if opts.Params <= 0 {
		return nil, fmt.Errorf("params must be > 0, got %d", opts.Params)
	}
	if opts.InputTokens < 0 {
		return nil, fmt.Errorf("input tokens must be >= 0, got %d", opts.InputTokens)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	provider, err := telemetryProvider(opts)
	if err != nil {
		return nil, err
	}

	if opts.SpansPath != "" {
		shutdown, err := installSpanExporter(opts.SpansPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logrus.Warnf("Flushing spans: %v", err)
			}
		}()
	}

	gate := admission.NewGuarded(admission.NewWithThresholds(cfg.Admission.Thresholds()))
	model := testmodel.NewQuadraticFromSeed(train.Seed(opts.ModelSeed), opts.Params)
	reg := prometheus.NewRegistry()
	tt := trace.NewTrainingTrace(opts.TraceLevel)

	orch, err := train.NewOrchestrator(cfg, train.Deps{
		Gate:     gate,
		Executor: model,
		Metrics:  train.NewMetrics(reg),
		Trace:    tt,
	})
	if err != nil {
		return nil, err
	}

	summary := &runSummary{RunID: tt.RunID}

	var (
		store  *ledger.Store
		signer *upload.Signer
	)
	if opts.LedgerPath != "" {
		if store, err = ledger.Open(opts.LedgerPath); err != nil {
			return nil, err
		}
		defer store.Close()
		if signer, err = upload.SignerFromEnv(); err != nil {
			return nil, err
		}
		summary.PublicKey = base64.StdEncoding.EncodeToString(signer.PublicKey())
	}

	input := make(train.Encoding, opts.InputTokens)
	if summary.InitialLoss, err = model.Loss(ctx, input, nil, 0); err != nil {
		return nil, fmt.Errorf("initial loss: %w", err)
	}

	for i := 0; i < opts.Steps; i++ {
		sample, err := provider.Sample(ctx)
		if errors.Is(err, telemetry.ErrExhausted) {
			logrus.Infof("Telemetry exhausted after %d steps", i)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading telemetry: %w", err)
		}
		summary.Attempted++

		res, err := orch.Step(ctx, train.StepInput{Telemetry: sample, Input: input})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			summary.Failed++
			continue
		}
		if res.Outcome == train.OutcomeSkipped {
			summary.Skipped++
			continue
		}
		summary.Completed++
		logrus.Debug(res.Describe())

		if err := model.ApplySeed(res.Seed, res.Update, opts.LearningRate); err != nil {
			return nil, err
		}
		if store != nil {
			u := upload.New(cfg.RoundID, uint64(res.Seed), res.Update, res.Loss, time.Unix(int64(sample.Now), 0))
			signer.Sign(&u)
			if err := store.Append(ctx, u); err != nil {
				return nil, err
			}
			summary.Uploads++
		}
	}

	if summary.FinalLoss, err = model.Loss(ctx, input, nil, 0); err != nil {
		return nil, fmt.Errorf("final loss: %w", err)
	}
	summary.Baseline = orch.Baseline()
	summary.Admission = gate.Snapshot()
	if opts.TraceLevel != trace.TraceLevelNone && opts.TraceLevel != "" {
		summary.Trace = trace.Summarize(tt)
	}

	if opts.MetricsPath != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsPath, reg); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}
	return summary, nil
}
