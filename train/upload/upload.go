// Package upload builds the per-step record a client sends upstream and signs
// it with the device key.
package upload

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSignature is returned by Verify when a record does not match its signature.
var ErrInvalidSignature = errors.New("invalid upload signature")

// ScalarUpload is the uplink record for one completed step: the server can
// replay the perturbation from SeedID and apply Scalar without any gradients
// leaving the device.
type ScalarUpload struct {
	ID        string    `json:"id"`
	RoundID   uint64    `json:"round_id"`
	SeedID    uint64    `json:"seed_id"`
	Scalar    float32   `json:"scalar"`
	LossLocal float32   `json:"loss_local"`
	CreatedAt time.Time `json:"created_at"`
	Signature []byte    `json:"signature,omitempty"`
}

// New creates an unsigned upload.
func New(roundID, seedID uint64, scalar, loss float32, now time.Time) ScalarUpload {
	return ScalarUpload{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		SeedID:    seedID,
		Scalar:    scalar,
		LossLocal: loss,
		CreatedAt: now.UTC(),
	}
}

// Payload is the signed byte string "<seed>:<scalar>:<round>".
func (u ScalarUpload) Payload() []byte {
	return []byte(fmt.Sprintf("%d:%s:%d", u.SeedID, FormatScalar(u.Scalar), u.RoundID))
}

// FormatScalar renders v the way verifiers print floats: shortest round-trip
// digits, a trailing ".0" on whole numbers, and exponent notation with at
// least two exponent digits outside [1e-4, 1e16).
func FormatScalar(v float32) string {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	mant, expStr, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 32), "e")
	exp, err := strconv.Atoi(expStr)
	if err == nil && (exp < -4 || exp >= 16) {
		return fmt.Sprintf("%se%+03d", mant, exp)
	}
	s := strconv.FormatFloat(f, 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// keyEnv is read by SignerFromEnv.
type keyEnv struct {
	PrivateKey string `env:"FWDTRAIN_CLIENT_PRIVATE_KEY"`
}

// Signer signs uploads with an Ed25519 device key.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner wraps an existing private key.
func NewSigner(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &Signer{key: key}, nil
}

// GenerateSigner creates a signer with a fresh session key.
func GenerateSigner() (*Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	return &Signer{key: key}, nil
}

// SignerFromEnv loads a base64 key from FWDTRAIN_CLIENT_PRIVATE_KEY. The value
// may be a 32-byte seed or a 64-byte private key. When the variable is unset
// a session key is generated.
func SignerFromEnv() (*Signer, error) {
	var cfg keyEnv
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PrivateKey == "" {
		logrus.Info("no device key configured; generating a session key")
		return GenerateSigner()
	}
	raw, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode device key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return NewSigner(ed25519.NewKeyFromSeed(raw))
	default:
		return NewSigner(ed25519.PrivateKey(raw))
	}
}

// PublicKey returns the key servers verify against.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign sets u.Signature.
func (s *Signer) Sign(u *ScalarUpload) {
	u.Signature = ed25519.Sign(s.key, u.Payload())
}

// Verify checks u.Signature against pub.
func Verify(pub ed25519.PublicKey, u ScalarUpload) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if !ed25519.Verify(pub, u.Payload(), u.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
