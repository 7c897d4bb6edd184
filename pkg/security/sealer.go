package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/containerd/errdefs"
)

// SealedPrefix marks a spec value stored encrypted
const SealedPrefix = "sealed:"

// DefaultSensitiveKeys are the spec key fragments treated as credentials
var DefaultSensitiveKeys = []string{"password", "secret", "token", "keyring", "key"}

// Sealer encrypts credential-like backend specs with AES-256-GCM
type Sealer struct {
	aead      cipher.AEAD
	sensitive []string
}

// NewSealer creates a sealer with the given 32-byte key. Spec keys
// containing any of sensitive (case-insensitive) are sealed; with none
// given DefaultSensitiveKeys apply.
func NewSealer(key []byte, sensitive ...string) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d: %w", len(key), errdefs.ErrInvalidArgument)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(sensitive) == 0 {
		sensitive = DefaultSensitiveKeys
	}
	lowered := make([]string, 0, len(sensitive))
	for _, s := range sensitive {
		lowered = append(lowered, strings.ToLower(s))
	}
	return &Sealer{aead: gcm, sensitive: lowered}, nil
}

// NewSealerFromPassphrase derives the key with SHA-256
func NewSealerFromPassphrase(passphrase string, sensitive ...string) (*Sealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty: %w", errdefs.ErrInvalidArgument)
	}
	hash := sha256.Sum256([]byte(passphrase))
	return NewSealer(hash[:], sensitive...)
}

// LoadSealer reads a key file. A file of exactly 32 bytes is used as the
// raw key; anything else is a passphrase with surrounding space trimmed.
func LoadSealer(path string, sensitive ...string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(data) == 32 {
		return NewSealer(data, sensitive...)
	}
	return NewSealerFromPassphrase(strings.TrimSpace(string(data)), sensitive...)
}

// IsSensitive reports whether values under key are sealed
func (s *Sealer) IsSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, frag := range s.sensitive {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

// Seal encrypts plaintext, prepending the nonce
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short: %w", errdefs.ErrDataLoss)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealSpecs returns a copy of specs with sensitive values sealed. Values
// already sealed are kept.
func (s *Sealer) SealSpecs(specs map[string]string) (map[string]string, error) {
	if specs == nil {
		return nil, nil
	}
	out := make(map[string]string, len(specs))
	for k, v := range specs {
		if !s.IsSensitive(k) || v == "" || strings.HasPrefix(v, SealedPrefix) {
			out[k] = v
			continue
		}
		sealed, err := s.Seal([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("spec %s: %w", k, err)
		}
		out[k] = SealedPrefix + base64.StdEncoding.EncodeToString(sealed)
	}
	return out, nil
}

// OpenSpecs returns a copy of specs with every sealed value decrypted
func (s *Sealer) OpenSpecs(specs map[string]string) (map[string]string, error) {
	if specs == nil {
		return nil, nil
	}
	out := make(map[string]string, len(specs))
	for k, v := range specs {
		encoded, ok := strings.CutPrefix(v, SealedPrefix)
		if !ok {
			out[k] = v
			continue
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("spec %s: %w", k, errdefs.ErrDataLoss)
		}
		plain, err := s.Open(data)
		if err != nil {
			return nil, fmt.Errorf("spec %s: %w", k, err)
		}
		out[k] = string(plain)
	}
	return out, nil
}
