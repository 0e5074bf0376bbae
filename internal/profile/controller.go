package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/readtrack/profilesync/internal/backend"
	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/storage"
)

// Backend is the profile API as seen by the controller
type Backend interface {
	GetProfile(ctx context.Context, token string) (*backend.ProfileResponse, error)
	UpdateProfile(ctx context.Context, token string, req backend.UpdateRequest) error
}

// TokenSource supplies the session credential
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SaveFailurePolicy decides what the store shows after a failed save
type SaveFailurePolicy int

const (
	// SaveFailureKeepUnsynced keeps the edit on screen, flagged unsynced
	SaveFailureKeepUnsynced SaveFailurePolicy = iota
	// SaveFailureRevert puts back the last server-confirmed profile
	SaveFailureRevert
)

func (p SaveFailurePolicy) String() string {
	switch p {
	case SaveFailureKeepUnsynced:
		return "keep"
	case SaveFailureRevert:
		return "revert"
	default:
		return "unknown"
	}
}

// ParseSaveFailurePolicy parses "keep" or "revert". Empty means keep.
func ParseSaveFailurePolicy(s string) (SaveFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return SaveFailureKeepUnsynced, nil
	case "revert":
		return SaveFailureRevert, nil
	default:
		return 0, fmt.Errorf("invalid save failure policy %q (want keep or revert)", s)
	}
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithReporter sets where failures are reported. Defaults to LogReporter.
func WithReporter(r Reporter) ControllerOption {
	return func(c *Controller) {
		if r != nil {
			c.reporter = r
		}
	}
}

// WithSaveFailurePolicy sets the save failure policy
func WithSaveFailurePolicy(p SaveFailurePolicy) ControllerOption {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithSnapshotStore persists every confirmed profile for account and lets
// Restore show it at the start of the next session.
func WithSnapshotStore(store storage.SnapshotStore, account string) ControllerOption {
	return func(c *Controller) {
		c.snapshots = store
		c.account = account
	}
}

// Controller runs profile fetches and saves against the backend and is the
// only writer of its Store. Operations are safe to call concurrently.
type Controller struct {
	store    *Store
	tokens   TokenSource
	backend  Backend
	reporter Reporter
	policy   SaveFailurePolicy

	snapshots storage.SnapshotStore
	account   string
	persistMu sync.Mutex
	persisted uint64

	seq atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a controller bound to lifetime. When lifetime ends,
// or Close is called, every request in flight is cancelled.
func NewController(lifetime context.Context, store *Store, tokens TokenSource, be Backend, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(lifetime)
	c := &Controller{
		store:    store,
		tokens:   tokens,
		backend:  be,
		reporter: LogReporter{},
		policy:   SaveFailureKeepUnsynced,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the store this controller writes to
func (c *Controller) Store() *Store {
	return c.store
}

// begin registers an operation and returns its context, which ends with
// either the caller's ctx or the controller's lifetime.
func (c *Controller) begin(ctx context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ctx.Err() != nil {
		return nil, nil, ErrClosed
	}
	c.wg.Add(1)

	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
		c.wg.Done()
	}, nil
}

// FetchProfile loads the profile from the server and merges it into the
// store. On failure the store's data is left untouched.
func (c *Controller) FetchProfile(ctx context.Context) error {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	return c.fetch(ctx, c.seq.Add(1))
}

func (c *Controller) fetch(ctx context.Context, seq uint64) error {
	c.store.mutate(seq, func(s *Snapshot) {
		s.State = StateTokenPending
	})

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, seq)
		}
		err = fmt.Errorf("%w: %w: %w", ErrFetchFailed, ErrUnauthenticated, err)
		c.fail(seq, StageToken, err, nil)
		return err
	}

	c.store.mutate(seq, func(s *Snapshot) {
		s.State = StateFetching
	})

	resp, err := c.backend.GetProfile(ctx, tok)
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, seq)
		}
		err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		c.fail(seq, StageFetch, err, nil)
		return err
	}

	var confirmed Data
	applied := c.store.mutate(seq, func(s *Snapshot) {
		s.Data = Merge(s.Data, Fields{DisplayName: resp.Username, Bio: resp.Bio})
		s.State = StateIdle
		s.Unsynced = false
		s.Restored = false
		s.Confirmed = s.Data
		s.HasConfirmed = true
		s.LastError = nil
		confirmed = s.Data
	})
	if !applied {
		log.LogDebugWithFields("profile_sync", "Discarding stale fetch result", map[string]any{
			"seq": seq,
		})
		return nil
	}

	c.persist(ctx, seq, confirmed)
	return nil
}

// SaveProfile shows data immediately, sends it to the server, and on
// success re-fetches so the store ends up with exactly what the server kept.
func (c *Controller) SaveProfile(ctx context.Context, data Data) error {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	seq := c.seq.Add(1)
	var previous Data
	applied := c.store.mutate(seq, func(s *Snapshot) {
		previous = s.Data
		s.Data = data
		s.State = StateSaving
		s.Unsynced = true
		s.LastError = nil
	})
	if !applied {
		return ErrSuperseded
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, seq)
		}
		err = fmt.Errorf("%w: %w: %w", ErrSaveFailed, ErrUnauthenticated, err)
		c.fail(seq, StageToken, err, &previous)
		return err
	}

	err = c.backend.UpdateProfile(ctx, tok, backend.UpdateRequest{
		DisplayName: data.DisplayName,
		Bio:         data.Bio,
	})
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(ctx, seq)
		}
		err = fmt.Errorf("%w: %w", ErrSaveFailed, err)
		c.fail(seq, StageSave, err, &previous)
		return err
	}

	log.LogDebugWithFields("profile_sync", "Profile saved, reconciling", map[string]any{
		"seq": seq,
	})
	// The reconcile belongs to this save: a save issued after it makes the
	// result stale, just like the save's own failure would be.
	return c.fetch(ctx, seq)
}

// fail records err in the store and reports it. previous is the data shown
// before a save; it is nil for fetches, which never touch data on failure.
func (c *Controller) fail(seq uint64, stage Stage, err error, previous *Data) {
	c.store.mutate(seq, func(s *Snapshot) {
		s.State = StateError
		s.LastError = err
		if previous == nil {
			return
		}
		switch c.policy {
		case SaveFailureRevert:
			if s.HasConfirmed {
				s.Data = s.Confirmed
			} else {
				s.Data = *previous
			}
			s.Unsynced = false
		default:
			s.Unsynced = true
		}
	})
	c.reporter.Report(stage, err)
}

// abandon settles the store after a cancelled operation. Cancellation is
// not a failure and is not reported.
func (c *Controller) abandon(ctx context.Context, seq uint64) error {
	c.store.mutate(seq, func(s *Snapshot) {
		s.State = StateIdle
	})
	log.LogDebugWithFields("profile_sync", "Operation cancelled", map[string]any{
		"seq":   seq,
		"cause": context.Cause(ctx).Error(),
	})
	return ctx.Err()
}

// persist writes a confirmed profile. Writes are serialized and a result
// older than the last one written is dropped, so the stored snapshot never
// goes back in time.
func (c *Controller) persist(ctx context.Context, seq uint64, data Data) {
	if c.snapshots == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if seq < c.persisted {
		log.LogDebugWithFields("profile_sync", "Skipping stale profile snapshot", map[string]any{
			"seq":       seq,
			"persisted": c.persisted,
		})
		return
	}
	c.persisted = seq

	err := c.snapshots.PutSnapshot(ctx, &storage.ProfileSnapshot{
		Account:     c.account,
		DisplayName: data.DisplayName,
		Bio:         data.Bio,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		log.LogWarnWithFields("profile_sync", "Failed to persist profile snapshot", map[string]any{
			"account": c.account,
			"error":   err.Error(),
		})
	}
}

// Restore shows the profile persisted by a previous session, if any. It
// only takes effect while no operation has changed the store, so it never
// overwrites fresher data.
func (c *Controller) Restore(ctx context.Context) (bool, error) {
	if c.snapshots == nil {
		return false, nil
	}

	snap, err := c.snapshots.GetSnapshot(ctx, c.account)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading profile snapshot: %w", err)
	}

	restored := Data{DisplayName: snap.DisplayName, Bio: snap.Bio}
	applied := c.store.mutate(0, func(s *Snapshot) {
		s.Data = restored
		s.Confirmed = restored
		s.HasConfirmed = true
		s.Restored = true
		s.Unsynced = false
	})
	if applied {
		log.LogDebugWithFields("profile_sync", "Restored profile snapshot", map[string]any{
			"account":     c.account,
			"confirmedAt": snap.ConfirmedAt,
		})
	}
	return applied, nil
}

// Forget deletes the persisted snapshot for the account
func (c *Controller) Forget(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	return c.snapshots.DeleteSnapshot(ctx, c.account)
}

// Close cancels every operation in flight and waits for them to return.
// Operations started afterwards fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
