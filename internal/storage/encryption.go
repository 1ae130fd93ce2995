package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// secretPrefix marks values produced by EncryptSecret.
	secretPrefix = "chunienc1:"

	defaultArgon2Time    = 1
	defaultArgon2Memory  = 64 * 1024 // KB
	defaultArgon2Threads = 4
	argon2KeyLen         = 32 // AES-256

	saltLength = 16
)

// ErrNoPassphrase is returned when a secret operation has no passphrase.
var ErrNoPassphrase = errors.New("encryption passphrase required")

// EncryptionConfig holds the passphrase and Argon2id cost parameters.
type EncryptionConfig struct {
	Passphrase string

	Argon2Time    uint32
	Argon2Memory  uint32 // KB
	Argon2Threads uint8
}

// DefaultEncryptionConfig returns a config with RFC 9106 parameters.
func DefaultEncryptionConfig(passphrase string) *EncryptionConfig {
	return &EncryptionConfig{
		Passphrase:    passphrase,
		Argon2Time:    defaultArgon2Time,
		Argon2Memory:  defaultArgon2Memory,
		Argon2Threads: defaultArgon2Threads,
	}
}

func (c *EncryptionConfig) gcm(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(c.Passphrase), salt, c.Argon2Time, c.Argon2Memory, c.Argon2Threads, argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// EncryptSecret seals plaintext with AES-256-GCM under a key derived from
// the passphrase. The result is "chunienc1:" + base64(salt||nonce||ciphertext).
func EncryptSecret(plaintext string, config *EncryptionConfig) (string, error) {
	if config == nil || config.Passphrase == "" {
		return "", ErrNoPassphrase
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := config.gcm(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := make([]byte, 0, saltLength+len(nonce)+len(plaintext)+aead.Overhead())
	sealed = append(sealed, salt...)
	sealed = append(sealed, nonce...)
	sealed = aead.Seal(sealed, nonce, []byte(plaintext), nil)

	return secretPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(encoded string, config *EncryptionConfig) (string, error) {
	if config == nil || config.Passphrase == "" {
		return "", ErrNoPassphrase
	}
	if !IsEncryptedSecret(encoded) {
		return "", fmt.Errorf("value is not an encrypted secret")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, secretPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if len(data) < saltLength {
		return "", fmt.Errorf("encrypted secret too short")
	}

	aead, err := config.gcm(data[:saltLength])
	if err != nil {
		return "", err
	}
	data = data[saltLength:]
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return "", fmt.Errorf("encrypted secret too short")
	}

	plaintext, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (wrong passphrase or corrupted data): %w", err)
	}
	return string(plaintext), nil
}

// IsEncryptedSecret reports whether s was produced by EncryptSecret.
func IsEncryptedSecret(s string) bool {
	return strings.HasPrefix(s, secretPrefix)
}
