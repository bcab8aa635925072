package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const pemPrivateKey = "PRIVATE KEY"

// GenerateEd25519Key returns a fresh Ed25519 signing key as PKCS8 PEM.
func GenerateEd25519Key() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate signing key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to encode signing key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateKey, Bytes: der}), nil
}

// LoadSigningKey reads the Ed25519 PEM key at path, generating and saving one
// when the file does not exist. created reports whether the key is new.
func LoadSigningKey(path string) (pemKey []byte, created bool, err error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := checkEd25519PEM(data); err != nil {
			return nil, false, fmt.Errorf("cryptox: signing key %s: %w", path, err)
		}
		return data, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("cryptox: failed to read signing key: %w", err)
	}

	if pemKey, err = GenerateEd25519Key(); err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, false, fmt.Errorf("cryptox: failed to create signing key directory: %w", err)
	}
	if err := os.WriteFile(path, pemKey, 0o600); err != nil {
		return nil, false, fmt.Errorf("cryptox: failed to write signing key: %w", err)
	}
	return pemKey, true, nil
}

func checkEd25519PEM(data []byte) error {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPrivateKey {
		return errors.New("not a PKCS8 PEM private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return err
	}
	if _, ok := key.(ed25519.PrivateKey); !ok {
		return fmt.Errorf("want an Ed25519 key, got %T", key)
	}
	return nil
}
