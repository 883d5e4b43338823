package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// KeySize - длина ключа AES-256
	KeySize = 32
)

// ErrAuthFailed is returned when ciphertext does not authenticate under the key.
var ErrAuthFailed = errors.New("authentication failed or corrupted data")

// Sealer шифрует записи локального хранилища ключом AES-256-GCM.
// Формат: nonce (12 bytes) + ciphertext + auth_tag (16 bytes).
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext. The additional data binds the ciphertext to its
// storage key so that values cannot be swapped between keys.
func (s *Sealer) Seal(plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, additional), nil
}

// Open decrypts data produced by Seal with the same additional data.
func (s *Sealer) Open(sealed, additional []byte) ([]byte, error) {
	if len(sealed) < NonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("encrypted data too short")
	}
	plaintext, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], additional)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
