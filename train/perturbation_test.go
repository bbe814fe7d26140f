package train

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"

	"github.com/fwdtrain/fwdtrain/internal/testutil"
)

// === splitmix64 / xoshiro Tests ===

func TestSplitmix64_KnownSequence(t *testing.T) {
	// GIVEN the canonical splitmix64 sequence from state 0
	want := []uint64{0xe220a8397b1dcdaf, 0x6e789e6aa1b965f4, 0x06c45d188009454f, 0xf88bb8a8724c81ec}

	// WHEN four values are drawn
	var acc uint64
	for i, w := range want {
		// THEN each matches the reference bit-for-bit
		got := splitmix64(&acc)
		if got != w {
			t.Errorf("draw %d: got %#x, want %#x", i, got, w)
		}
	}
}

func TestNewXoshiro_LanesFromSplitmix(t *testing.T) {
	x := newXoshiro(0)
	assert.Equal(t, [4]uint64{0xe220a8397b1dcdaf, 0x6e789e6aa1b965f4, 0x06c45d188009454f, 0xf88bb8a8724c81ec}, x.s)
}

func TestXoshiro_UniformInUnitInterval(t *testing.T) {
	x := newXoshiro(7)
	for i := 0; i < 10000; i++ {
		u := x.uniform()
		if u < 0 || u >= 1 {
			t.Fatalf("draw %d: uniform %v outside [0, 1)", i, u)
		}
	}
}

// === Generate Tests ===

func TestGenerate_GoldenVectors(t *testing.T) {
	// Bit patterns pin the generator so a replayed step on any client
	// reproduces the same perturbation.
	dataset := testutil.LoadGoldenDataset(t)
	for _, tc := range dataset.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			want := tc.Want(t)
			testutil.AssertFloat32Bits(t, tc.Name, want, Generate(Seed(tc.Seed), len(want)))
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	// BDD: same seed and length produce identical vectors
	for _, seed := range []Seed{0, 1, 42, 123, math.MaxUint64} {
		for _, n := range []int{0, 1, 2, 7, 100} {
			v1 := Generate(seed, n)
			v2 := Generate(seed, n)
			for i := range v1 {
				if math.Float32bits(v1[i]) != math.Float32bits(v2[i]) {
					t.Fatalf("seed=%d n=%d: element %d differs (%v vs %v)", seed, n, i, v1[i], v2[i])
				}
			}
		}
	}
}

func TestGenerate_DistinctSeeds(t *testing.T) {
	v1 := Generate(42, 100)
	v2 := Generate(123, 100)
	assert.NotEqual(t, v1[0], v2[0], "different seeds should produce different first elements")

	// Adjacent seeds are decorrelated by the splitmix expansion.
	for s := Seed(0); s < 64; s++ {
		a := Generate(s, 1)
		b := Generate(s+1, 1)
		if a[0] == b[0] {
			t.Errorf("seeds %d and %d share first element %v", s, s+1, a[0])
		}
	}
}

func TestGenerate_PrefixStableForEvenLengths(t *testing.T) {
	// GIVEN a long vector and a shorter even-length one from the same seed
	long := Generate(99, 64)
	short := Generate(99, 10)

	// THEN the short one is a prefix of the long one
	assert.Equal(t, long[:10], short)
}

func TestGenerate_OddLengthKeepsFirstComponent(t *testing.T) {
	// The odd tail draws one fresh pair and keeps z0, which equals
	// element n-1 of the next even-length draw.
	odd := Generate(5, 7)
	even := Generate(5, 8)
	assert.Equal(t, even[:7], odd)
}

func TestGenerate_NonPositiveLength(t *testing.T) {
	assert.Empty(t, Generate(1, 0))
	assert.Empty(t, Generate(1, -3))
	assert.NotNil(t, Generate(1, 0))
}

func TestGenerate_Distribution(t *testing.T) {
	// GIVEN 10000 deviates
	v := Generate(1, 10000)
	xs := make([]float64, len(v))
	for i, f := range v {
		xs[i] = float64(f)
	}

	// THEN mean ~ 0 and std ~ 1
	mean, std := stat.MeanStdDev(xs, nil)
	assert.Less(t, math.Abs(mean), 0.05, "mean %v should be close to 0", mean)
	assert.Less(t, math.Abs(std-1.0), 0.05, "std %v should be close to 1", std)
}

func TestGenerate_AllFinite(t *testing.T) {
	for _, f := range Generate(2024, 4096) {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			t.Fatalf("non-finite deviate %v", f)
		}
	}
}

func TestGenerateInto_OverwritesBuffer(t *testing.T) {
	buf := []float32{9, 9, 9, 9, 9}
	GenerateInto(42, buf)
	assert.Equal(t, Generate(42, 5), buf)
}
