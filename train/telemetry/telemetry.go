// Package telemetry defines the device readings the admission policy consumes
// and simple providers for them. How a host actually reads temperature and
// battery state is outside this module.
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrExhausted is returned by a Script once every sample has been replayed.
var ErrExhausted = errors.New("telemetry script exhausted")

// Sample is one reading of device state.
type Sample struct {
	TempC          float32 `yaml:"temp_c" json:"temp_c"`
	BatteryPercent float32 `yaml:"battery_percent" json:"battery_percent"`
	Charging       bool    `yaml:"charging" json:"charging"`
	Now            uint64  `yaml:"now" json:"now"` // Unix seconds
}

// Provider supplies the current device state.
type Provider interface {
	Sample(ctx context.Context) (Sample, error)
}

// Static always returns the same reading.
type Static Sample

func (s Static) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	return Sample(s), nil
}

// Script replays a fixed sequence of samples, e.g. a recorded device trace.
//
// Thread-safety: NOT thread-safe.
type Script struct {
	Samples []Sample `yaml:"samples"`
	next    int
}

// LoadScript reads a YAML telemetry script. Unknown keys are rejected.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading telemetry script: %w", err)
	}
	var script Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("parsing telemetry script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

// Validate checks reading ranges and that timestamps never go backwards.
func (s *Script) Validate() error {
	var prev uint64
	for i, sm := range s.Samples {
		if sm.BatteryPercent < 0 || sm.BatteryPercent > 100 {
			return fmt.Errorf("sample %d: battery_percent must be in [0, 100], got %.1f", i, sm.BatteryPercent)
		}
		if sm.Now < prev {
			return fmt.Errorf("sample %d: now (%d) is before previous sample (%d)", i, sm.Now, prev)
		}
		prev = sm.Now
	}
	return nil
}

// Sample returns the next reading, or ErrExhausted.
func (s *Script) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if s.next >= len(s.Samples) {
		return Sample{}, ErrExhausted
	}
	sm := s.Samples[s.next]
	s.next++
	return sm, nil
}

// Remaining returns how many samples are left.
func (s *Script) Remaining() int {
	return len(s.Samples) - s.next
}

// Clocked repeats one reading while advancing Now by Interval seconds per
// call, starting at Base.Now.
type Clocked struct {
	Base     Sample
	Interval uint64
	calls    uint64
}

func (c *Clocked) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	sm := c.Base
	sm.Now += c.calls * c.Interval
	c.calls++
	return sm, nil
}
