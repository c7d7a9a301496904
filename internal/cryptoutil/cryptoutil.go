// Package cryptoutil seals provider access tokens before they are written to the users table.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encryptor seals and opens secrets. The associated data binds a ciphertext to its owner
// so a sealed value copied onto another row fails to open.
type Encryptor interface {
	Encrypt(plaintext, associated []byte) (string, error)
	Decrypt(ciphertext string, associated []byte) ([]byte, error)
}

const (
	// Version tags on stored values.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// ErrKeyRequired is returned when a sealed value is read without a configured key.
var ErrKeyRequired = errors.New("value is sealed but no encryption key is configured")

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// NewAESGCMEncryptor constructs an AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// ParseKey accepts a 64-character hex key as-is and derives a 32-byte key from anything else.
func ParseKey(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:], nil
}

// Encrypt seals plaintext with a random nonce and returns a versioned base64 string.
// An empty plaintext stays empty.
func (e *AESGCMEncryptor) Encrypt(plaintext, associated []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	// nonce||ciphertext
	sealed := e.aead.Seal(nonce, nonce, plaintext, associated)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values written by NoopEncryptor before a key
// was configured are still readable.
func (e *AESGCMEncryptor) Decrypt(ciphertext string, associated []byte) ([]byte, error) {
	switch {
	case ciphertext == "":
		return nil, nil
	case strings.HasPrefix(ciphertext, plainPrefix):
		return decodePlain(ciphertext)
	case !strings.HasPrefix(ciphertext, sealedPrefixV1):
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", prefixOf(ciphertext))
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	pt, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], associated)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return pt, nil
}

// NoopEncryptor stores plaintext behind a marker prefix. It is used when no key is configured.
type NoopEncryptor struct{}

func (NoopEncryptor) Encrypt(plaintext, _ []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopEncryptor) Decrypt(ciphertext string, _ []byte) ([]byte, error) {
	switch {
	case ciphertext == "":
		return nil, nil
	case strings.HasPrefix(ciphertext, sealedPrefixV1):
		return nil, ErrKeyRequired
	case strings.HasPrefix(ciphertext, plainPrefix):
		return decodePlain(ciphertext)
	default:
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", prefixOf(ciphertext))
	}
}

func decodePlain(ciphertext string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(ciphertext[len(plainPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode plain value: %w", err)
	}
	return decoded, nil
}

// prefixOf returns at most the first few bytes, enough to identify a version tag.
func prefixOf(s string) string {
	if len(s) > 6 {
		return s[:6]
	}
	return s
}
