package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// verifierContext отделяет verifier от любых других производных ключа
var verifierContext = []byte("chartsync store verifier")

// KeyVerifier returns a value that proves knowledge of key without revealing
// it. It is stored next to the salt so a wrong passphrase is detected on open.
func KeyVerifier(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("key cannot be empty")
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(verifierContext)
	return mac.Sum(nil), nil
}

// CheckKeyVerifier reports whether key matches a stored verifier.
func CheckKeyVerifier(key, verifier []byte) bool {
	computed, err := KeyVerifier(key)
	if err != nil {
		return false
	}
	return hmac.Equal(computed, verifier)
}
