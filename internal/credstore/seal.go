// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	keySize  = 32 // AES-256
	saltSize = 32

	// DefaultIterations is the PBKDF2-SHA-256 work factor.
	DefaultIterations = 600000
)

// ErrDecryptionFailed indicates a wrong passphrase or a tampered file.
var ErrDecryptionFailed = errors.New("credential decryption failed: wrong passphrase or corrupted file")

// sealedFile is the on-disk form of encrypted credentials.
type sealedFile struct {
	Sealed     bool   `json:"sealed"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Data       []byte `json:"data"`
}

// zeroBytes wipes key material.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func deriveKey(passphrase string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext under a key derived from passphrase and a fresh salt.
func seal(passphrase string, iterations int, plaintext []byte) (*sealedFile, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt, iterations)
	defer zeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &sealedFile{
		Sealed:     true,
		Iterations: iterations,
		Salt:       salt,
		Nonce:      nonce,
		Data:       gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// open reverses seal.
func open(passphrase string, f *sealedFile) ([]byte, error) {
	if f.Iterations <= 0 || len(f.Salt) == 0 {
		return nil, ErrDecryptionFailed
	}
	key := deriveKey(passphrase, f.Salt, f.Iterations)
	defer zeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(f.Nonce) != gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, f.Nonce, f.Data, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
