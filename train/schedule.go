package train

import (
	"fmt"
	"hash/fnv"
	"math"
)

// === SeedSchedule ===

// SeedSchedule hands out one Seed per training step.
//
// When a server-provided seed list is set, seeds are cycled in order.
// Otherwise each step's seed is derived deterministically:
//
//	seed(n) = master XOR fnv1a64("step_<n>")
//
// so two clients with the same master seed draw the same perturbations.
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type SeedSchedule struct {
	master Seed
	seeds  []Seed
	drawn  uint64
}

// NewSeedSchedule creates a schedule. seeds may be empty.
func NewSeedSchedule(master Seed, seeds []Seed) *SeedSchedule {
	return &SeedSchedule{
		master: master,
		seeds:  append([]Seed(nil), seeds...),
	}
}

// Next returns the seed for the next step and advances the schedule.
func (s *SeedSchedule) Next() Seed {
	n := s.drawn
	s.drawn++
	if len(s.seeds) > 0 {
		return s.seeds[n%uint64(len(s.seeds))]
	}
	return DeriveSeed(s.master, fmt.Sprintf("step_%d", n))
}

// Drawn returns how many seeds have been handed out.
func (s *SeedSchedule) Drawn() uint64 {
	return s.drawn
}

// SetSeeds replaces the seed list (e.g. on a new round) and restarts the cycle.
func (s *SeedSchedule) SetSeeds(seeds []Seed) {
	s.seeds = append(s.seeds[:0], seeds...)
	s.drawn = 0
}

// DeriveSeed isolates a named stream from the master seed.
func DeriveSeed(master Seed, name string) Seed {
	return master ^ Seed(fnv1a64(name))
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// === EpsilonSchedule ===

// EpsilonSchedule yields the perturbation magnitude for a step:
// Initial * Decay^step, never below Floor. Decay of 0 or 1 means constant.
type EpsilonSchedule struct {
	Initial float32
	Decay   float32
	Floor   float32
}

// At returns epsilon for the given completed-step count.
func (e EpsilonSchedule) At(step uint64) float32 {
	if e.Decay <= 0 || e.Decay == 1 {
		return e.Initial
	}
	eps := float32(float64(e.Initial) * math.Pow(float64(e.Decay), float64(step)))
	return max(eps, e.Floor)
}
