package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FieldProtector provides AES-256-GCM encryption for client identity fields
// and HMAC-SHA256 signatures for audit entries. Keys are versioned so they
// can rotate without re-encrypting the whole table.
type FieldProtector struct {
	keys           map[int][]byte
	currentVersion int
	hmacSecret     []byte
}

// NewFieldProtector creates a field protector with versioned keys
func NewFieldProtector(keysBase64 []string, currentVersion int, hmacSecretBase64 string) (*FieldProtector, error) {
	if len(keysBase64) == 0 {
		return nil, errors.New("at least one encryption key is required")
	}

	keys := make(map[int][]byte)
	for i, keyB64 := range keysBase64 {
		key, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode key %d: %w", i+1, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("key %d must be 32 bytes for AES-256, got %d", i+1, len(key))
		}
		keys[i+1] = key
	}

	if _, exists := keys[currentVersion]; !exists {
		return nil, fmt.Errorf("current version %d not found in keys", currentVersion)
	}

	hmacSecret, err := base64.StdEncoding.DecodeString(hmacSecretBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode HMAC secret: %w", err)
	}

	return &FieldProtector{
		keys:           keys,
		currentVersion: currentVersion,
		hmacSecret:     hmacSecret,
	}, nil
}

// CurrentKeyVersion returns the key version used for new encryptions
func (p *FieldProtector) CurrentKeyVersion() int {
	return p.currentVersion
}

// Encrypt encrypts a field value with the current key version
func (p *FieldProtector) Encrypt(plaintext string) (string, int, error) {
	key := p.keys[p.currentVersion]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", 0, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), p.currentVersion, nil
}

// Decrypt decrypts a field value with the given key version
func (p *FieldProtector) Decrypt(ciphertext string, keyVersion int) (string, error) {
	key, exists := p.keys[keyVersion]
	if !exists {
		return "", fmt.Errorf("key version %d not found", keyVersion)
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(decoded) < aesGCM.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, payload := decoded[:aesGCM.NonceSize()], decoded[aesGCM.NonceSize():]
	plaintext, err := aesGCM.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// SignAuditEntry generates the HMAC signature over the identifying fields of
// an audit entry for non-repudiation
func (p *FieldProtector) SignAuditEntry(fields ...string) string {
	mac := hmac.New(sha256.New, p.hmacSecret)
	mac.Write([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAuditEntry checks an audit entry signature
func (p *FieldProtector) VerifyAuditEntry(signature string, fields ...string) bool {
	expected := p.SignAuditEntry(fields...)
	return hmac.Equal([]byte(expected), []byte(signature))
}
