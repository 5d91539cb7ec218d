// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/kbchat/internal/model"
	"github.com/jeranaias/kbchat/internal/util"
)

// Credentials is what a successful login yields.
type Credentials struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

// Store persists credentials to a single file.
// With a passphrase the file is sealed with AES-256-GCM.
type Store struct {
	path       string
	passphrase string
	iterations int
}

// NewStore returns a store at path. An empty passphrase stores plain JSON.
func NewStore(path, passphrase string) *Store {
	return &Store{path: path, passphrase: passphrase, iterations: DefaultIterations}
}

// WithIterations overrides the PBKDF2 work factor for newly sealed files.
func (s *Store) WithIterations(n int) *Store {
	s.iterations = n
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads stored credentials. A missing file yields (nil, nil).
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var probe sealedFile
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if probe.Sealed {
		if s.passphrase == "" {
			return nil, fmt.Errorf("credentials are encrypted: set KBCHAT_CREDENTIAL_KEY")
		}
		data, err = open(s.passphrase, &probe)
		if err != nil {
			return nil, err
		}
		defer zeroBytes(data)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes creds atomically with 0600 permissions.
func (s *Store) Save(creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if s.passphrase != "" {
		sealed, err := seal(s.passphrase, s.iterations, data)
		zeroBytes(data)
		if err != nil {
			return err
		}
		if data, err = json.Marshal(sealed); err != nil {
			return fmt.Errorf("failed to encode sealed credentials: %w", err)
		}
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Remove deletes the credential file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
