// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session manages the respondent's authentication token: keychain
// storage with an environment fallback, JWT validation, and the back
// navigation skip predicate for auth blocks.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zalando/go-keyring"

	"github.com/formwalk/formwalk/pkg/survey"
)

const (
	// keychainService is the service name for formwalk keychain entries
	keychainService = "formwalk"

	// tokenKeyName is the keychain key for the respondent auth token
	tokenKeyName = "auth-token"

	// tokenEnvVar is the environment variable fallback for headless/CI runs
	tokenEnvVar = "FORMWALK_AUTH_TOKEN"
)

// ErrTokenNotFound is returned when no token is stored in the keychain or
// environment.
var ErrTokenNotFound = errors.New("auth token not found in keychain or environment")

// Claims are the token claims formwalk cares about.
type Claims struct {
	jwt.RegisteredClaims
	// UserID identifies the authenticated respondent.
	UserID string `json:"user_id,omitempty"`
}

// TokenStore handles retrieval and storage of the auth token.
//
// Resolution order:
//  1. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)
//  2. FORMWALK_AUTH_TOKEN environment variable
type TokenStore struct {
	// keychainAvailable indicates if the system keychain is accessible
	keychainAvailable bool

	// clockSkew is the leeway allowed when validating exp/nbf claims
	clockSkew time.Duration
}

// NewTokenStore creates a token store. Keychain availability is probed but
// unavailability is not an error; the environment fallback is automatic.
func NewTokenStore() *TokenStore {
	store := &TokenStore{
		keychainAvailable: true,
		clockSkew:         30 * time.Second,
	}

	_, err := keyring.Get(keychainService, "__formwalk_availability_test__")
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		store.keychainAvailable = false
	}

	return store
}

// Load retrieves the stored token. Returns ErrTokenNotFound when neither
// the keychain nor the environment has one.
func (s *TokenStore) Load() (string, error) {
	if s.keychainAvailable {
		token, err := keyring.Get(keychainService, tokenKeyName)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			// Keychain locked or unavailable; fall through to the env var.
			s.keychainAvailable = false
		}
	}

	if token := os.Getenv(tokenEnvVar); token != "" {
		return token, nil
	}

	return "", ErrTokenNotFound
}

// Save stores the token in the keychain. When the keychain is unavailable
// the caller is told how to persist the token via the environment.
func (s *TokenStore) Save(token string) error {
	if !s.keychainAvailable {
		return fmt.Errorf("system keychain unavailable; set %s instead", tokenEnvVar)
	}
	if err := keyring.Set(keychainService, tokenKeyName, token); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

// Delete removes the stored token. A missing token is not an error.
func (s *TokenStore) Delete() error {
	if !s.keychainAvailable {
		return nil
	}
	if err := keyring.Delete(keychainService, tokenKeyName); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete token from keychain: %w", err)
	}
	return nil
}

// Validate parses and validates a token. With an empty secret the
// signature is not checked and only the time-based claims are enforced,
// which is enough for the back-skip predicate: an expired token means the
// auth block must be shown again.
func (s *TokenStore) Validate(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}

	parser := jwt.NewParser(jwt.WithLeeway(s.clockSkew))

	if len(secret) == 0 {
		claims := &Claims{}
		if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
		if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time.Add(s.clockSkew)) {
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Authenticated reports whether a stored, unexpired token exists.
func (s *TokenStore) Authenticated(secret []byte) bool {
	token, err := s.Load()
	if err != nil {
		return false
	}
	_, err = s.Validate(token, secret)
	return err == nil
}

// SkipOnBack returns the back-navigation skip predicate: authored
// skip_on_back blocks are always bypassed, and auth blocks are bypassed
// while the respondent holds a valid token.
func (s *TokenStore) SkipOnBack(secret []byte) func(*survey.Block) bool {
	return func(b *survey.Block) bool {
		if b.SkipOnBack {
			return true
		}
		return b.Type == survey.BlockTypeAuth && s.Authenticated(secret)
	}
}

// IssueToken creates a signed HS256 token, used by `formwalk run --login`
// in development setups.
func IssueToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("no signing key configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "formwalk",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
