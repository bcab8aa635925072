package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MasterKeyEnv is read by LoadSealer when no key file is configured.
const MasterKeyEnv = "EMSTORE_MASTER_KEY"

var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// Sealer encrypts small secrets at rest with AES-256-GCM. Output layout is
// [12-byte nonce][ciphertext][16-byte tag].
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from arbitrary key material with SHA-256.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key")
	}
	key := sha256.Sum256(material)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadSealer reads key material from path, or from MasterKeyEnv when path is
// empty. With neither it generates an ephemeral key and reports so; secrets
// sealed with it do not survive a restart.
func LoadSealer(path string) (s *Sealer, ephemeral bool, err error) {
	var material []byte
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read master key file: %w", err)
		}
		material = []byte(strings.TrimSpace(string(data)))
	case os.Getenv(MasterKeyEnv) != "":
		material = []byte(os.Getenv(MasterKeyEnv))
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, false, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
		ephemeral = true
	}

	s, err = NewSealer(material)
	return s, ephemeral, err
}

// EncryptSecret seals plaintext under a fresh random nonce.
func (s *Sealer) EncryptSecret(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptSecret opens data produced by EncryptSecret.
func (s *Sealer) DecryptSecret(data []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
