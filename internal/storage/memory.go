package storage

import (
	"context"
	"fmt"
	"sync"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps everything in process memory. Nothing survives a
// restart, which makes it the default for tests and one-shot commands.
type MemoryStorage struct {
	credentials      map[string]Credential
	credentialsMutex sync.RWMutex
	snapshots        map[string]ProfileSnapshot
	snapshotsMutex   sync.RWMutex
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		credentials: make(map[string]Credential),
		snapshots:   make(map[string]ProfileSnapshot),
	}
}

// GetCredential returns a copy of the stored credential
func (s *MemoryStorage) GetCredential(_ context.Context, account string) (*Credential, error) {
	s.credentialsMutex.RLock()
	defer s.credentialsMutex.RUnlock()

	cred, ok := s.credentials[account]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (s *MemoryStorage) SetCredential(_ context.Context, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential cannot be nil")
	}
	s.credentialsMutex.Lock()
	s.credentials[cred.Account] = *cred
	s.credentialsMutex.Unlock()
	return nil
}

func (s *MemoryStorage) DeleteCredential(_ context.Context, account string) error {
	s.credentialsMutex.Lock()
	delete(s.credentials, account)
	s.credentialsMutex.Unlock()
	return nil
}

// GetSnapshot returns a copy of the stored snapshot
func (s *MemoryStorage) GetSnapshot(_ context.Context, account string) (*ProfileSnapshot, error) {
	s.snapshotsMutex.RLock()
	defer s.snapshotsMutex.RUnlock()

	snap, ok := s.snapshots[account]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (s *MemoryStorage) PutSnapshot(_ context.Context, snap *ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	s.snapshotsMutex.Lock()
	s.snapshots[snap.Account] = *snap
	s.snapshotsMutex.Unlock()
	return nil
}

func (s *MemoryStorage) DeleteSnapshot(_ context.Context, account string) error {
	s.snapshotsMutex.Lock()
	delete(s.snapshots, account)
	s.snapshotsMutex.Unlock()
	return nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
