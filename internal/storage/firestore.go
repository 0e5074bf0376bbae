package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/readtrack/profilesync/internal/crypto"
	"github.com/readtrack/profilesync/internal/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStorage persists credentials and profile snapshots in Google Cloud
// Firestore so a user's session follows them across machines.
//
// Error handling strategy:
// - Credential operations: return errors (a token that silently failed to
// persist would surprise the next run)
// - Snapshot writes: log and continue (the snapshot is a display hint, the
// server stays authoritative)
type FirestoreStorage struct {
	client              *firestore.Client
	projectID           string
	collection          string
	snapshotsCollection string
	encryptor           crypto.Encryptor
}

var _ Storage = (*FirestoreStorage)(nil)

// CredentialDoc is the Firestore shape of a stored credential
type CredentialDoc struct {
	Account   string    `firestore:"account"`
	Token     string    `firestore:"token"` // encrypted
	Source    string    `firestore:"source,omitempty"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// SnapshotDoc is the Firestore shape of a profile snapshot
type SnapshotDoc struct {
	Account     string    `firestore:"account"`
	DisplayName string    `firestore:"display_name"`
	Bio         string    `firestore:"bio"`
	ConfirmedAt time.Time `firestore:"confirmed_at"`
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor, opts ...option.ClientOption) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStorage{
		client:              client,
		projectID:           projectID,
		collection:          collection,
		snapshotsCollection: collection + "_snapshots",
		encryptor:           encryptor,
	}, nil
}

// docID maps an account to a document ID. Account names may contain "/",
// which Firestore treats as a path separator.
func docID(account string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(account))
}

func (s *FirestoreStorage) GetCredential(ctx context.Context, account string) (*Credential, error) {
	doc, err := s.client.Collection(s.collection).Doc(docID(account)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential from Firestore: %w", err)
	}

	var credDoc CredentialDoc
	if err := doc.DataTo(&credDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	token, err := s.encryptor.Decrypt(credDoc.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return &Credential{
		Account:   credDoc.Account,
		Token:     token,
		Source:    credDoc.Source,
		UpdatedAt: credDoc.UpdatedAt,
	}, nil
}

func (s *FirestoreStorage) SetCredential(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential cannot be nil")
	}

	encrypted, err := s.encryptor.Encrypt(cred.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = s.client.Collection(s.collection).Doc(docID(cred.Account)).Set(ctx, CredentialDoc{
		Account:   cred.Account,
		Token:     encrypted,
		Source:    cred.Source,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store credential in Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) DeleteCredential(ctx context.Context, account string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(account)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete credential from Firestore: %w", err)
	}
	return nil
}

func (s *FirestoreStorage) GetSnapshot(ctx context.Context, account string) (*ProfileSnapshot, error) {
	doc, err := s.client.Collection(s.snapshotsCollection).Doc(docID(account)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot from Firestore: %w", err)
	}

	var snapDoc SnapshotDoc
	if err := doc.DataTo(&snapDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &ProfileSnapshot{
		Account:     snapDoc.Account,
		DisplayName: snapDoc.DisplayName,
		Bio:         snapDoc.Bio,
		ConfirmedAt: snapDoc.ConfirmedAt,
	}, nil
}

func (s *FirestoreStorage) PutSnapshot(ctx context.Context, snap *ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	confirmedAt := snap.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now()
	}

	_, err := s.client.Collection(s.snapshotsCollection).Doc(docID(snap.Account)).Set(ctx, SnapshotDoc{
		Account:     snap.Account,
		DisplayName: snap.DisplayName,
		Bio:         snap.Bio,
		ConfirmedAt: confirmedAt,
	})
	if err != nil {
		log.LogWarnWithFields("storage", "Failed to store profile snapshot in Firestore", map[string]any{
			"account": snap.Account,
			"error":   err.Error(),
		})
	}
	return nil
}

func (s *FirestoreStorage) DeleteSnapshot(ctx context.Context, account string) error {
	_, err := s.client.Collection(s.snapshotsCollection).Doc(docID(account)).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete snapshot from Firestore: %w", err)
	}
	return nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
