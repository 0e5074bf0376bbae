package testutil

import (
	"context"
	"sync"

	"github.com/readtrack/profilesync/internal/backend"
	"github.com/readtrack/profilesync/internal/profile"
	"github.com/stretchr/testify/mock"
)

// MockProvider is a session.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Acquire(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockTokenSource is a profile.TokenSource
type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockBackend is a profile.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetProfile(ctx context.Context, token string) (*backend.ProfileResponse, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.ProfileResponse), args.Error(1)
}

func (m *MockBackend) UpdateProfile(ctx context.Context, token string, req backend.UpdateRequest) error {
	args := m.Called(ctx, token, req)
	return args.Error(0)
}

// Profile builds a response with both fields present
func Profile(username, bio string) *backend.ProfileResponse {
	return &backend.ProfileResponse{Username: &username, Bio: &bio}
}

// Report is one call to a RecordingReporter
type Report struct {
	Stage profile.Stage
	Err   error
}

// RecordingReporter remembers every report it receives
type RecordingReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (r *RecordingReporter) Report(stage profile.Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Stage: stage, Err: err})
}

// Reports returns a copy of the reports received so far
func (r *RecordingReporter) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}
