package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an account
var ErrNotFound = errors.New("not found")

// Credential is a bearer credential persisted between runs
type Credential struct {
	Account   string    `json:"account"`
	Token     string    `json:"token"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileSnapshot is the last profile the server confirmed for an account.
// It is shown at session start, before the first fetch completes.
type ProfileSnapshot struct {
	Account     string    `json:"account"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// CredentialStore persists bearer credentials per account
type CredentialStore interface {
	GetCredential(ctx context.Context, account string) (*Credential, error)
	SetCredential(ctx context.Context, cred *Credential) error
	DeleteCredential(ctx context.Context, account string) error
}

// SnapshotStore persists the last confirmed profile per account
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, account string) (*ProfileSnapshot, error)
	PutSnapshot(ctx context.Context, snap *ProfileSnapshot) error
	DeleteSnapshot(ctx context.Context, account string) error
}

// Storage combines all storage capabilities needed by a sync session
type Storage interface {
	CredentialStore
	SnapshotStore
	Close() error
}
