// Package crypto seals message payloads exchanged with the daemon using
// NaCl SecretBox (XSalsa20-Poly1305).
//
// Sealed format: base64([nonce (24 bytes)][ciphertext + auth tag]).
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required data key length in bytes.
const KeySize = 32

const nonceSize = 24

// SealString encrypts plaintext with the data key and returns the sealed
// payload as base64.
func SealString(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("data key must be %d bytes, got %d", KeySize, len(key))
	}
	var secret [KeySize]byte
	copy(secret[:], key)

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &secret)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString decrypts a payload produced by SealString.
func OpenString(sealed string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("data key must be %d bytes, got %d", KeySize, len(key))
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("sealed payload too short")
	}

	var secret [KeySize]byte
	copy(secret[:], key)
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &secret)
	if !ok {
		return "", fmt.Errorf("decryption failed")
	}
	return string(plaintext), nil
}
