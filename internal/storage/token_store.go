package storage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/logging"
)

// tokenKey is the KV key the token record lives under.
const tokenKey = "oauth_tokens"

// Tokens is the persisted OAuth token record. It is always written and
// deleted as a whole; readers never observe a partial triple.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the absolute access-token expiry in unix milliseconds.
	ExpiresAt int64 `json:"expiresAt"`
}

// Complete reports whether all three fields are present.
func (t Tokens) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != "" && t.ExpiresAt != 0
}

// TokenStore persists the OAuth token record in a KV store.
type TokenStore struct {
	kv     KV
	logger *slog.Logger
}

// NewTokenStore creates a TokenStore backed by kv.
func NewTokenStore(kv KV, logger *slog.Logger) *TokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenStore{kv: kv, logger: logger}
}

// Get returns the stored token record, or nil when none is stored.
func (s *TokenStore) Get(ctx context.Context) (*Tokens, error) {
	raw, ok, err := s.kv.Get(ctx, tokenKey)
	if err != nil {
		return nil, errdefs.NewStorage("failed to read token record", err)
	}
	if !ok {
		return nil, nil
	}
	var t Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errdefs.NewStorage("failed to decode token record", err)
	}
	return &t, nil
}

// Set overwrites the token record and then re-reads it to confirm
// durability. A verification mismatch is logged as a warning but never
// surfaced; storage verification is defense-in-depth, not a correctness gate.
func (s *TokenStore) Set(ctx context.Context, tokens Tokens) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return errdefs.NewStorage("failed to encode token record", err)
	}
	if err := s.kv.Set(ctx, map[string]json.RawMessage{tokenKey: raw}); err != nil {
		return errdefs.NewStorage("failed to write token record", err)
	}

	s.verify(ctx, tokens)
	return nil
}

// Remove deletes the token record. Removing an absent record is a no-op.
func (s *TokenStore) Remove(ctx context.Context) error {
	if err := s.kv.Remove(ctx, tokenKey); err != nil {
		return errdefs.NewStorage("failed to remove token record", err)
	}
	return nil
}

// verify re-reads the record just written and field-compares it.
func (s *TokenStore) verify(ctx context.Context, want Tokens) {
	got, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("token storage verification failed",
			logging.Operation("token_store.verify"), logging.Err(err))
		return
	}
	if got == nil {
		s.logger.Warn("token record absent immediately after write",
			logging.Operation("token_store.verify"))
		return
	}
	if got.AccessToken != want.AccessToken ||
		got.RefreshToken != want.RefreshToken ||
		got.ExpiresAt != want.ExpiresAt {
		s.logger.Warn("token record mismatch after write",
			logging.Operation("token_store.verify"),
			slog.String("stored_access", logging.SanitizeToken(got.AccessToken)),
			slog.String("expected_access", logging.SanitizeToken(want.AccessToken)))
	}
}
