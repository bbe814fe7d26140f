package train

import (
	"math"
	"math/bits"
)

// === Seed ===

// Seed identifies exactly one perturbation draw.
// Two calls to Generate with the same Seed and length MUST produce
// bit-for-bit identical vectors, across processes and platforms.
type Seed uint64

// === Constants ===

const (
	// uniformScale is 2^-53, mapping the top 53 bits of a raw draw onto [0, 1).
	uniformScale = 1.0 / (1 << 53)

	// minUniform replaces a zero first uniform so ln(u1) stays finite.
	minUniform = 1.0e-10
)

// === xoshiro256** ===

// xoshiro is the four-lane generator state. Arithmetic is native uint64,
// which wraps modulo 2^64 exactly as the reference generator expects.
type xoshiro struct {
	s [4]uint64
}

// splitmix64 advances *x and returns one avalanche-mixed value.
func splitmix64(x *uint64) uint64 {
	*x += 0x9e3779b97f4a7c15
	z := *x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// newXoshiro expands a seed into the four lanes via splitmix64.
func newXoshiro(seed Seed) *xoshiro {
	acc := uint64(seed)
	x := &xoshiro{}
	for i := range x.s {
		x.s[i] = splitmix64(&acc)
	}
	return x
}

func (x *xoshiro) next() uint64 {
	result := bits.RotateLeft64(x.s[1]*5, 7) * 9
	t := x.s[1] << 17

	x.s[2] ^= x.s[0]
	x.s[3] ^= x.s[1]
	x.s[1] ^= x.s[2]
	x.s[0] ^= x.s[3]

	x.s[2] ^= t
	x.s[3] = bits.RotateLeft64(x.s[3], 45)

	return result
}

// uniform returns a double in [0, 1) built from the top 53 bits of one draw.
func (x *xoshiro) uniform() float64 {
	return float64(x.next()>>11) * uniformScale
}

// normalPair draws two uniforms and returns a Box-Muller normal pair.
func (x *xoshiro) normalPair() (float64, float64) {
	u1 := x.uniform()
	u2 := x.uniform()
	if u1 <= 0 {
		u1 = minUniform
	}
	mag := math.Sqrt(-2.0 * math.Log(u1))
	angle := 2.0 * math.Pi * u2
	return mag * math.Cos(angle), mag * math.Sin(angle)
}

// === Generation ===

// Generate returns n standard-normal deviates fully determined by seed.
// Returns an empty (non-nil) slice for n <= 0.
func Generate(seed Seed, n int) []float32 {
	if n < 0 {
		n = 0
	}
	buf := make([]float32, n)
	GenerateInto(seed, buf)
	return buf
}

// GenerateInto fills buf with the perturbation for seed, overwriting its contents.
// Thread-safety: safe to call concurrently as long as buffers are distinct.
func GenerateInto(seed Seed, buf []float32) {
	rng := newXoshiro(seed)
	n := len(buf)
	i := 0
	for ; i+1 < n; i += 2 {
		z0, z1 := rng.normalPair()
		buf[i] = float32(z0)
		buf[i+1] = float32(z1)
	}
	if i < n {
		z0, _ := rng.normalPair()
		buf[i] = float32(z0)
	}
}
