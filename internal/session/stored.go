package session

import (
	"context"
	"errors"
	"time"

	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/storage"
)

// Stored reuses a credential persisted by an earlier run and falls back to
// another provider when none is stored. Credentials obtained from the
// fallback are written back so the next session can skip the round trip.
//
// Storage failures are not fatal: a failed read falls through to the
// fallback, and a failed write-back is logged and ignored.
type Stored struct {
	store    storage.CredentialStore
	account  string
	source   string
	fallback Provider
}

// NewStored creates a storage-backed provider. fallback may be nil.
func NewStored(store storage.CredentialStore, account string, fallback Provider, source string) *Stored {
	return &Stored{
		store:    store,
		account:  account,
		source:   source,
		fallback: fallback,
	}
}

// Acquire implements Provider
func (s *Stored) Acquire(ctx context.Context) (string, error) {
	cred, err := s.store.GetCredential(ctx, s.account)
	switch {
	case err == nil && cred.Token != "":
		log.LogTraceWithFields("session", "Using stored credential", map[string]any{
			"account": s.account,
			"source":  cred.Source,
		})
		return cred.Token, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		log.LogWarnWithFields("session", "Failed to read stored credential", map[string]any{
			"account": s.account,
			"error":   err.Error(),
		})
	}

	if s.fallback == nil {
		return "", ErrNoCredential
	}

	token, err := s.fallback.Acquire(ctx)
	if err != nil {
		return "", err
	}

	if err := s.store.SetCredential(ctx, &storage.Credential{
		Account:   s.account,
		Token:     token,
		Source:    s.source,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		log.LogWarnWithFields("session", "Failed to persist credential", map[string]any{
			"account": s.account,
			"error":   err.Error(),
		})
	}
	return token, nil
}

// Forget deletes the stored credential for the account
func (s *Stored) Forget(ctx context.Context) error {
	return s.store.DeleteCredential(ctx, s.account)
}
