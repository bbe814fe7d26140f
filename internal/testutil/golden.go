// Package testutil provides shared test infrastructure for fwdtrain.
// It holds the golden perturbation dataset and assertion helpers used by the
// train/ and cmd/ test packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

// GoldenDataset represents the structure of testdata/perturbation_golden.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one seed and the float32 bit patterns of its vector prefix.
type GoldenTestCase struct {
	Name string   `json:"name"`
	Seed uint64   `json:"seed"`
	Bits []string `json:"bits"` // hex, no 0x prefix
}

// Want decodes Bits into float32 bit patterns.
func (tc GoldenTestCase) Want(t *testing.T) []uint32 {
	t.Helper()
	out := make([]uint32, len(tc.Bits))
	for i, b := range tc.Bits {
		v, err := strconv.ParseUint(b, 16, 32)
		if err != nil {
			t.Fatalf("%s: bad bit pattern %q: %v", tc.Name, b, err)
		}
		out[i] = uint32(v)
	}
	return out
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata", "perturbation_golden.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	if len(dataset.Tests) == 0 {
		t.Fatal("Golden dataset has no test cases")
	}
	return &dataset
}

// AssertFloat32Bits fails unless got matches want bit for bit.
func AssertFloat32Bits(t *testing.T, name string, want []uint32, got []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d values, want %d", name, len(got), len(want))
	}
	for i, w := range want {
		if g := math.Float32bits(got[i]); g != w {
			t.Errorf("%s: element %d: got %#x (%v), want %#x", name, i, g, got[i], w)
		}
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
