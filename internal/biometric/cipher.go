// Package biometric encrypts face descriptors at rest and scores probe
// descriptors against enrolled templates.
package biometric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrDecryption          = errors.New("descriptor decryption failed")
	ErrMalformedDescriptor = errors.New("malformed descriptor")
	ErrDimensionMismatch   = errors.New("descriptor dimension mismatch")
)

const keyInfo = "attendance/descriptor-cipher/v1"

// FeatureVector is a face descriptor as produced by the client-side detector.
type FeatureVector []float64

// Nonce is the base64 text form of a template's initialization vector.
type Nonce string

// Ciphertext is a sealed FeatureVector including the GCM tag.
type Ciphertext []byte

func (c Ciphertext) String() string { return base64.StdEncoding.EncodeToString(c) }

// ParseCiphertext decodes the stored text form of a Ciphertext.
func ParseCiphertext(s string) (Ciphertext, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrDecryption, err)
	}
	return b, nil
}

// GenerateNonce returns length random bytes in base64.
func GenerateNonce(length int) (Nonce, error) {
	if length <= 0 {
		return "", fmt.Errorf("nonce length %d: must be positive", length)
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return Nonce(base64.StdEncoding.EncodeToString(b)), nil
}

// Cipher seals descriptors with AES-256-GCM. It holds no mutable state and
// is safe for concurrent use.
type Cipher struct {
	aead     cipher.AEAD
	nonceLen int
}

// NewCipher derives the AES key from secret with HKDF-SHA256 and builds a
// GCM instance that takes nonceLen-byte IVs.
func NewCipher(secret []byte, nonceLen int) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, errors.New("cipher secret is empty")
	}
	if nonceLen <= 0 {
		return nil, fmt.Errorf("nonce length %d: must be positive", nonceLen)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead, nonceLen: nonceLen}, nil
}

// NonceLength is the IV size in bytes this Cipher expects.
func (c *Cipher) NonceLength() int { return c.nonceLen }

// NewNonce generates a nonce of the configured length.
func (c *Cipher) NewNonce() (Nonce, error) { return GenerateNonce(c.nonceLen) }

// Encrypt is deterministic for a given (key, nonce, vector).
func (c *Cipher) Encrypt(v FeatureVector, n Nonce) (Ciphertext, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	iv, err := c.decodeNonce(n)
	if err != nil {
		return nil, err
	}
	return c.aead.Seal(nil, iv, marshalVector(v), nil), nil
}

// Decrypt opens ct and fails with ErrDecryption when the ciphertext was
// altered or was sealed under a different key or nonce.
func (c *Cipher) Decrypt(ct Ciphertext, n Nonce) (FeatureVector, error) {
	iv, err := c.decodeNonce(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	plain, err := c.aead.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	v, err := unmarshalVector(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return v, nil
}

func (c *Cipher) decodeNonce(n Nonce) ([]byte, error) {
	iv, err := base64.StdEncoding.DecodeString(string(n))
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	if len(iv) != c.nonceLen {
		return nil, fmt.Errorf("nonce: got %d bytes, want %d", len(iv), c.nonceLen)
	}
	return iv, nil
}

// Validate rejects empty vectors and non-finite components.
func Validate(v FeatureVector) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedDescriptor)
	}
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", ErrMalformedDescriptor, i)
		}
	}
	return nil
}

// little-endian float64 words; bit exact in both directions
func marshalVector(v FeatureVector) []byte {
	b := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(f))
	}
	return b
}

func unmarshalVector(b []byte) (FeatureVector, error) {
	if len(b) == 0 || len(b)%8 != 0 {
		return nil, fmt.Errorf("plaintext length %d is not a whole number of components", len(b))
	}
	v := make(FeatureVector, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v, nil
}
