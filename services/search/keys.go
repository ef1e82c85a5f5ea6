// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// memguardInitOnce ensures memguard initialization happens only once.
var memguardInitOnce sync.Once

// initMemguard performs one-time memguard setup so enclaves are wiped on
// interrupt.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
}

// APIKey holds a provider credential in an encrypted memguard enclave.
//
// Description:
//
//	The plaintext key lives in locked memory only while a request is
//	being signed; the rest of the time it is sealed. This keeps search
//	provider credentials out of heap dumps and swap.
//
// Thread Safety:
//
//	Safe for concurrent use.
type APIKey struct {
	enclave *memguard.Enclave
}

// NewAPIKey seals a key string into an enclave. The input string cannot
// be wiped (Go strings are immutable), so callers should load keys from
// the environment once at startup and avoid further copies.
func NewAPIKey(key string) *APIKey {
	initMemguard()
	key = strings.TrimSpace(key)
	if key == "" {
		return &APIKey{}
	}
	return &APIKey{
		enclave: memguard.NewEnclave([]byte(key)),
	}
}

// APIKeyFromEnv seals the named environment variable, falling back to a
// secrets file at /run/secrets/<lowercased name> when unset.
func APIKeyFromEnv(name string) *APIKey {
	if v := os.Getenv(name); v != "" {
		return NewAPIKey(v)
	}
	secretPath := "/run/secrets/" + strings.ToLower(name)
	if data, err := os.ReadFile(secretPath); err == nil {
		return NewAPIKey(string(data))
	}
	return NewAPIKey("")
}

// IsSet reports whether a key is present.
func (k *APIKey) IsSet() bool {
	return k != nil && k.enclave != nil
}

// Use decrypts the key, passes it to fn, and wipes the plaintext buffer
// when fn returns.
func (k *APIKey) Use(fn func(key string) error) error {
	if !k.IsSet() {
		return ErrNoAPIKey
	}

	buf, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()

	return fn(buf.String())
}
