// Package token memoizes the session credential.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/session"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrTokenUnavailable is returned when no credential could be obtained.
	// The underlying cause, if any, is wrapped alongside it.
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrClosed is wrapped with ErrTokenUnavailable once the cache is closed
	ErrClosed = errors.New("token cache closed")
)

const flightKey = "token"

// Stats describes the cache for diagnostics
type Stats struct {
	Acquisitions int64
	Cached       bool
	Closed       bool
}

// Cache hands out the session credential, acquiring it from a provider at
// most once at a time. A successful acquisition is kept until Close; a
// failed one is not cached, so the next caller retries.
//
// Acquisitions run under the cache's own lifetime rather than the caller's
// context: a caller that gives up stops waiting, but the acquisition keeps
// going for everyone else still waiting on it.
type Cache struct {
	provider session.Provider
	group    singleflight.Group

	mu     sync.RWMutex
	token  string
	closed bool

	ctx          context.Context
	cancel       context.CancelFunc
	acquisitions atomic.Int64
}

// NewCache creates an empty cache in front of provider
func NewCache(provider session.Provider) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Token returns the cached credential, or joins (or starts) the single
// acquisition in flight.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok, err := c.cached(); ok {
		return tok, err
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		// another flight may have finished between the fast path and here
		if tok, ok, err := c.cached(); ok {
			return tok, err
		}
		return c.acquire()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// cached reports whether the cache can answer without a provider call
func (c *Cache) cached() (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return "", true, fmt.Errorf("%w: %w", ErrTokenUnavailable, ErrClosed)
	}
	if c.token != "" {
		return c.token, true, nil
	}
	return "", false, nil
}

func (c *Cache) acquire() (string, error) {
	n := c.acquisitions.Add(1)
	log.LogDebugWithFields("token", "Acquiring credential", map[string]any{
		"attempt": n,
	})

	tok, err := c.provider.Acquire(c.ctx)
	if err != nil {
		log.LogDebugWithFields("token", "Credential acquisition failed", map[string]any{
			"attempt": n,
			"error":   err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if tok == "" {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, session.ErrNoCredential)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, ErrClosed)
	}
	c.token = tok
	return tok, nil
}

// Close forgets the credential and cancels any acquisition in flight.
// Every later call to Token fails with ErrTokenUnavailable.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.token = ""
	c.mu.Unlock()
	c.cancel()
}

// Stats returns a point-in-time view of the cache
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Acquisitions: c.acquisitions.Load(),
		Cached:       c.token != "",
		Closed:       c.closed,
	}
}
