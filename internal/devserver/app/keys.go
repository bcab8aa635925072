package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/jwtx"
)

// InitKeys builds the access token KeyManager. A configured signing key file
// is created on first start. Without one the key is generated in memory and
// every issued token dies with the process.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	var pemKey []byte
	if cfg.SigningKeyFile != "" {
		key, created, err := cryptox.LoadSigningKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		pemKey = key
		if created {
			logger.Info("signing key generated", "path", cfg.SigningKeyFile)
		} else {
			logger.Info("signing key loaded", "path", cfg.SigningKeyFile)
		}
	}

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Issuer: cfg.Issuer,
		KeyPEM: pemKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if len(pemKey) == 0 {
		logger.Warn("using ephemeral signing key; tokens will not survive a restart")
	}
	return km, nil
}

// InitSealer loads the key that encrypts mailbox passwords at rest.
func InitSealer(cfg Config, logger *slog.Logger) (*cryptox.Sealer, error) {
	sealer, ephemeral, err := cryptox.LoadSealer(cfg.MasterKeyPath)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		logger.Warn("using ephemeral master key; stored mailbox passwords will not decrypt after a restart",
			"env", cryptox.MasterKeyEnv,
		)
	}
	return sealer, nil
}
