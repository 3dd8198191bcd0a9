package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/moneymapper/authcore/pkg/logger"
	"golang.org/x/crypto/hkdf"
)

const encryptionSalt = "moneymapper-totp-encryption"

// SecretBox seals small secrets (TOTP seeds, backup codes) at rest with
// AES-256-GCM under a key derived from the configured secret. A box built
// from an empty secret stores values as-is.
type SecretBox struct {
	key []byte
}

func NewSecretBox(secret string) (*SecretBox, error) {
	if secret == "" {
		return &SecretBox{}, nil
	}
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(encryptionSalt),
		[]byte("encryption-key"),
	)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return &SecretBox{key: key}, nil
}

func (b *SecretBox) Enabled() bool {
	return b != nil && b.key != nil
}

func (b *SecretBox) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (b *SecretBox) Seal(plaintext string) (string, error) {
	if !b.Enabled() {
		return plaintext, nil
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (b *SecretBox) Open(sealed string) (string, error) {
	if !b.Enabled() {
		return "", errors.New("encryption not configured")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// sealedMinLen is the decoded size of the smallest value Seal produces: a
// GCM nonce plus its tag.
const sealedMinLen = 12 + 16

// OpenOrPlaintext returns the decrypted value, or the input unchanged when it
// was stored before encryption was configured. A value shaped like Seal
// output that still fails to open is logged, since it points at a changed
// key or a corrupt row.
func (b *SecretBox) OpenOrPlaintext(value string) string {
	if value == "" {
		return ""
	}
	opened, err := b.Open(value)
	if err == nil {
		return opened
	}
	if looksSealed(value) {
		logger.Warn("secret_decrypt_failed", map[string]interface{}{
			"error":      err.Error(),
			"configured": b.Enabled(),
		})
	}
	return value
}

func looksSealed(value string) bool {
	raw, err := base64.StdEncoding.DecodeString(value)
	return err == nil && len(raw) >= sealedMinLen
}
