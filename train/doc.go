// Package train provides the on-device forward-gradient training core.
//
// # Reading Guide
//
// Start with these files:
//   - perturbation.go: seeded Gaussian perturbation vectors (xoshiro256** + Box-Muller)
//   - estimator.go: antithetic finite-difference update scalar with baseline and clipping
//   - orchestrator.go: one candidate step from admission to outcome reporting
//
// # Architecture
//
// A step never moves gradients or weights off the device. The orchestrator
// asks the admission gate whether the device may run, evaluates the model
// three times (unperturbed, +eps*v, -eps*v) through a ModelExecutor, and
// produces a single clipped scalar. The seed that generated v plus that
// scalar is all a server needs to replay the update.
//
// Sub-packages:
//   - train/admission: battery floor, thermal hysteresis and failure backoff
//   - train/telemetry: device readings and scripted providers
//   - train/trace: per-run admission and step records with summary statistics
//   - train/upload: signed per-step upload records
//   - train/ledger: SQLite outbox of uploads awaiting delivery
//   - train/testmodel: a synthetic quadratic ModelExecutor
//
// # Key Interfaces
//
//   - ModelExecutor: loss under a perturbation, and parameter count
//   - Gate: admission decisions and outcome reporting
package train
