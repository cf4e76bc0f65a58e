// Package cryptutil provides symmetric encryption for the token store,
// using AES-GCM with a key derived from a passphrase via PBKDF2.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations is the work factor for key derivation. Chosen to be
// cheap enough for a per-process startup cost while still resisting casual
// brute force of a short passphrase.
const pbkdf2Iterations = 100_000

const keyLen = 32 // AES-256

// deriveKey stretches a passphrase and salt into an AES-256 key via PBKDF2-
// HMAC-SHA256. The salt need not be secret; it only needs to be stable
// across encrypt/decrypt calls for the same on-disk blob.
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
}

// Encrypt encrypts plaintext under a key derived from passphrase and salt,
// using AES-GCM. The output is hex-encoded nonce||ciphertext.
func Encrypt(plaintext string, passphrase string, salt []byte) (string, error) {
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptutil: create cipher block: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cryptutil: create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptutil: generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. The passphrase and salt must match those used
// to encrypt, or the GCM authentication check will fail.
func Decrypt(encrypted string, passphrase string, salt []byte) (string, error) {
	key := deriveKey(passphrase, salt)

	enc, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decode hex: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptutil: create cipher block: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cryptutil: create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(enc) < nonceSize {
		return "", errors.New("cryptutil: ciphertext too short")
	}
	nonce, ciphertext := enc[:nonceSize], enc[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("cryptutil: decrypt: %w", err)
	}
	return string(plaintext), nil
}
