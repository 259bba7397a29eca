package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Service encrypts per-tenant fields at rest. Each org gets its own subkey
// derived from the master key, so ciphertext from one org never decrypts
// under another org's key.
type Service struct {
	masterKey []byte
}

func NewService(masterKey string) (*Service, error) {
	if masterKey == "" {
		return nil, errors.New("encryption key not configured")
	}
	sum := sha256.Sum256([]byte(masterKey))
	return &Service{masterKey: sum[:]}, nil
}

func (s *Service) orgKey(orgID string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, s.masterKey, []byte(orgID), []byte("leadpulse-field-key"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptField encrypts plaintext for an org. The context string is bound to
// the ciphertext as associated data, so a token ciphertext cannot be replayed
// into a different field.
func (s *Service) EncryptField(orgID, plaintext, context string) (string, error) {
	key, err := s.orgKey(orgID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(context))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField reverses EncryptField for the same org and context.
func (s *Service) DecryptField(orgID, ciphertext, context string) (string, error) {
	key, err := s.orgKey(orgID)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(context))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt field: %w", err)
	}
	return string(plain), nil
}
