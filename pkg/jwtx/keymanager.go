package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/emstore/pkg/cryptox"
)

// KeyManager ties a signer to the KeySet and Verifier that accept its tokens.
type KeyManager struct {
	signer   *EdDSASigner
	verifier *EdDSAVerifier
	keys     *KeySet
	issuer   string
	audience []string
}

// KeyManagerOptions configures NewKeyManager.
type KeyManagerOptions struct {
	Issuer   string
	Audience []string

	// KeyPEM is a PKCS8 Ed25519 private key. When empty an ephemeral key is
	// generated and every token dies with the process.
	KeyPEM []byte
}

// NewKeyManager loads or generates the signing key.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}

	pemKey := opts.KeyPEM
	if len(pemKey) == 0 {
		var err error
		if pemKey, err = cryptox.GenerateEd25519Key(); err != nil {
			return nil, err
		}
	}

	kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key ID: %w", err)
	}
	signer, err := NewSigner("emstore-"+kid, pemKey)
	if err != nil {
		return nil, err
	}

	keys := NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, err
	}

	return &KeyManager{
		signer:   signer,
		verifier: NewVerifier(keys, opts.Issuer, opts.Audience),
		keys:     keys,
		issuer:   opts.Issuer,
		audience: opts.Audience,
	}, nil
}

// Issue signs an access token for the given user.
func (km *KeyManager) Issue(subject, username, email string, ttl time.Duration, now time.Time) (string, error) {
	return km.signer.Sign(NewAccessClaims(subject, username, email, ttl, km.issuer, km.audience, now))
}

func (km *KeyManager) Verifier() Verifier { return km.verifier }
func (km *KeyManager) KeySet() *KeySet    { return km.keys }
func (km *KeyManager) Signer() Signer     { return km.signer }

// IsReady reports whether a verification key is loaded.
func (km *KeyManager) IsReady() bool { return km.keys.IsReady() }
