// Package session supplies the bearer credential for the signed-in reader.
//
// A Provider is the only place a credential is obtained from. Callers never
// use a Provider directly; they go through token.Cache, which memoizes the
// result for the life of the session and deduplicates concurrent acquisitions.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrNoCredential is returned when a provider has nothing to hand out
var ErrNoCredential = errors.New("no credential available")

// Provider supplies a bearer credential on demand.
type Provider interface {
	Acquire(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context) (string, error)

// Acquire implements Provider
func (f ProviderFunc) Acquire(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static hands out a fixed credential, typically read from config or env.
type Static struct {
	token string
}

// NewStatic creates a provider for a fixed credential
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

// Acquire implements Provider
func (s *Static) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}
