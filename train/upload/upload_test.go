package upload

import (
	"crypto/ed25519"
	"encoding/base64"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_Format(t *testing.T) {
	tests := []struct {
		name   string
		scalar float32
		want   string
	}{
		{"clipped high", 5, "7:5.0:3"},
		{"clipped low", -5, "7:-5.0:3"},
		{"zero", 0, "7:0.0:3"},
		{"negative zero", float32(math.Copysign(0, -1)), "7:-0.0:3"},
		{"fraction", 0.1, "7:0.1:3"},
		{"half", 0.5, "7:0.5:3"},
		{"small uses exponent", 1e-05, "7:1e-05:3"},
		{"small mantissa", -2.5e-07, "7:-2.5e-07:3"},
		{"smallest fixed", 1e-04, "7:0.0001:3"},
		{"large whole", 123456, "7:123456.0:3"},
		{"huge uses exponent", 1e16, "7:1e+16:3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := New(3, 7, tt.scalar, 1, time.Unix(0, 0))
			assert.Equal(t, tt.want, string(u.Payload()))
		})
	}
}

func TestFormatScalar_NonFinite(t *testing.T) {
	assert.Equal(t, "nan", FormatScalar(float32(math.NaN())))
	assert.Equal(t, "inf", FormatScalar(float32(math.Inf(1))))
	assert.Equal(t, "-inf", FormatScalar(float32(math.Inf(-1))))
}

func TestNew_FillsFields(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	u := New(3, 99, 1.25, 0.75, now)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, uint64(3), u.RoundID)
	assert.Equal(t, uint64(99), u.SeedID)
	assert.Equal(t, float32(1.25), u.Scalar)
	assert.Equal(t, float32(0.75), u.LossLocal)
	assert.Equal(t, time.UTC, u.CreatedAt.Location())
	assert.Nil(t, u.Signature)
}

func TestSignAndVerify(t *testing.T) {
	// GIVEN a signed upload
	s, err := GenerateSigner()
	require.NoError(t, err)
	u := New(1, 2, 3.5, 0.1, time.Now())
	s.Sign(&u)

	// THEN it verifies with the signer's public key
	require.NoError(t, Verify(s.PublicKey(), u))

	// AND tampering with the scalar breaks the signature
	u.Scalar = 4
	assert.ErrorIs(t, Verify(s.PublicKey(), u), ErrInvalidSignature)
}

func TestVerify_RejectsShortKey(t *testing.T) {
	assert.ErrorContains(t, Verify(ed25519.PublicKey{1, 2}, ScalarUpload{}), "public key")
}

func TestNewSigner_RejectsShortKey(t *testing.T) {
	_, err := NewSigner(ed25519.PrivateKey{1})
	assert.Error(t, err)
}

func TestSignerFromEnv_SeedKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	t.Setenv("FWDTRAIN_CLIENT_PRIVATE_KEY", base64.StdEncoding.EncodeToString(seed))

	s, err := SignerFromEnv()
	require.NoError(t, err)
	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	assert.Equal(t, want, s.PublicKey())
}

func TestSignerFromEnv_FullKey(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	t.Setenv("FWDTRAIN_CLIENT_PRIVATE_KEY", base64.StdEncoding.EncodeToString(key))

	s, err := SignerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, key.Public(), s.PublicKey())
}

func TestSignerFromEnv_GeneratesWhenUnset(t *testing.T) {
	t.Setenv("FWDTRAIN_CLIENT_PRIVATE_KEY", "")
	s, err := SignerFromEnv()
	require.NoError(t, err)
	assert.Len(t, s.PublicKey(), ed25519.PublicKeySize)
}

func TestSignerFromEnv_BadBase64(t *testing.T) {
	t.Setenv("FWDTRAIN_CLIENT_PRIVATE_KEY", "%%%")
	_, err := SignerFromEnv()
	assert.ErrorContains(t, err, "decode device key")
}
