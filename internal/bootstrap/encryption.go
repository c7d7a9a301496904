package bootstrap

import (
	"log/slog"

	"github.com/weeklydigest/sessionauth/internal/cryptoutil"
)

// CreateTokenEncryptor builds the encryptor used to seal access tokens at rest.
// It falls back to the noop encryptor, with a warning, when the key is empty or unusable.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateTokenEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		logger.Warn("AUTH_TOKEN_ENCRYPTION_KEY is empty, access tokens are stored unsealed")
		return cryptoutil.NoopEncryptor{}
	}

	keyBytes, err := cryptoutil.ParseKey(key)
	if err == nil {
		var enc *cryptoutil.AESGCMEncryptor
		if enc, err = cryptoutil.NewAESGCMEncryptor(keyBytes); err == nil {
			return enc
		}
	}
	logger.Warn("failed to create token encryptor, access tokens are stored unsealed", "error", err)
	return cryptoutil.NoopEncryptor{}
}
