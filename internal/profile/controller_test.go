package profile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/readtrack/profilesync/internal/backend"
	"github.com/readtrack/profilesync/internal/profile"
	"github.com/readtrack/profilesync/internal/session"
	"github.com/readtrack/profilesync/internal/storage"
	"github.com/readtrack/profilesync/internal/testutil"
	"github.com/readtrack/profilesync/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *profile.Store
	tokens   *token.Cache
	backend  *testutil.MockBackend
	reporter *testutil.RecordingReporter
	ctrl     *profile.Controller
}

func newFixture(t *testing.T, initial profile.Data, provider session.Provider, opts ...profile.ControllerOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    profile.NewStore(initial),
		tokens:   token.NewCache(provider),
		backend:  &testutil.MockBackend{},
		reporter: &testutil.RecordingReporter{},
	}
	opts = append([]profile.ControllerOption{profile.WithReporter(f.reporter)}, opts...)
	f.ctrl = profile.NewController(context.Background(), f.store, f.tokens, f.backend, opts...)
	t.Cleanup(func() {
		f.ctrl.Close()
		f.tokens.Close()
	})
	return f
}

func TestFetchProfile(t *testing.T) {
	t.Run("applies server profile", func(t *testing.T) {
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"))
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("alice", "hi"), nil)

		require.NoError(t, f.ctrl.FetchProfile(context.Background()))

		snap := f.store.Snapshot()
		assert.Equal(t, profile.Data{DisplayName: "alice", Bio: "hi"}, snap.Data)
		assert.Equal(t, profile.StateIdle, snap.State)
		assert.True(t, snap.Authoritative())
		assert.Nil(t, snap.LastError)
		assert.Empty(t, f.reporter.Reports())
		f.backend.AssertExpectations(t)
	})

	t.Run("missing field keeps local value", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "carol", Bio: "old bio"}, session.NewStatic("abc"))
		alice := "alice"
		f.backend.On("GetProfile", mock.Anything, "abc").Return(&backend.ProfileResponse{Username: &alice}, nil)

		require.NoError(t, f.ctrl.FetchProfile(context.Background()))
		assert.Equal(t, profile.Data{DisplayName: "alice", Bio: "old bio"}, f.store.Data())
	})

	failures := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "server error",
			err:  &backend.ServerError{Op: "fetch profile", StatusCode: 500, Message: "boom"},
			check: func(t *testing.T, err error) {
				var se *backend.ServerError
				assert.ErrorAs(t, err, &se)
			},
		},
		{
			name: "network error",
			err:  &backend.NetworkError{Op: "fetch profile", Err: errors.New("connection refused")},
			check: func(t *testing.T, err error) {
				var ne *backend.NetworkError
				assert.ErrorAs(t, err, &ne)
			},
		},
		{
			name: "parse error",
			err:  &backend.ParseError{Op: "fetch profile", Err: errors.New("unexpected EOF")},
			check: func(t *testing.T, err error) {
				var pe *backend.ParseError
				assert.ErrorAs(t, err, &pe)
			},
		},
	}
	for _, tt := range failures {
		t.Run(tt.name+" leaves data untouched", func(t *testing.T) {
			initial := profile.Data{DisplayName: "carol", Bio: "old bio"}
			f := newFixture(t, initial, session.NewStatic("abc"))
			f.backend.On("GetProfile", mock.Anything, "abc").Return(nil, tt.err)

			err := f.ctrl.FetchProfile(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, profile.ErrFetchFailed)
			tt.check(t, err)

			snap := f.store.Snapshot()
			assert.Equal(t, initial, snap.Data)
			assert.Equal(t, profile.StateError, snap.State)
			assert.Equal(t, err, snap.LastError)

			reports := f.reporter.Reports()
			require.Len(t, reports, 1)
			assert.Equal(t, profile.StageFetch, reports[0].Stage)
			tt.check(t, reports[0].Err)
		})
	}

	t.Run("no credential", func(t *testing.T) {
		initial := profile.Data{DisplayName: "carol", Bio: "old bio"}
		f := newFixture(t, initial, session.NewStatic(""))

		err := f.ctrl.FetchProfile(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, profile.ErrUnauthenticated)
		assert.ErrorIs(t, err, token.ErrTokenUnavailable)

		assert.Equal(t, initial, f.store.Data())
		assert.Equal(t, profile.StateError, f.store.Snapshot().State)

		reports := f.reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, profile.StageToken, reports[0].Stage)
		assert.ErrorIs(t, reports[0].Err, token.ErrTokenUnavailable)
		f.backend.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	})

	t.Run("concurrent fetches acquire the token once", func(t *testing.T) {
		provider := &testutil.MockProvider{}
		provider.On("Acquire", mock.Anything).
			Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
			Return("abc", nil).Once()

		f := newFixture(t, profile.Data{}, provider)
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("alice", "hi"), nil)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, f.ctrl.FetchProfile(context.Background()))
			}()
		}
		wg.Wait()

		provider.AssertNumberOfCalls(t, "Acquire", 1)
		assert.Equal(t, profile.Data{DisplayName: "alice", Bio: "hi"}, f.store.Data())
		assert.Equal(t, profile.StateIdle, f.store.Snapshot().State)
	})
}

func TestSaveProfile(t *testing.T) {
	edit := profile.Data{DisplayName: "bob", Bio: "new"}
	editReq := backend.UpdateRequest{DisplayName: "bob", Bio: "new"}

	t.Run("applies edit before the network call resolves", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "alice", Bio: "hi"}, session.NewStatic("abc"))
		entered := make(chan struct{})
		release := make(chan struct{})
		f.backend.On("UpdateProfile", mock.Anything, "abc", editReq).
			Run(func(mock.Arguments) {
				close(entered)
				<-release
			}).
			Return(nil)
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("bob", "new"), nil)

		done := make(chan error, 1)
		go func() { done <- f.ctrl.SaveProfile(context.Background(), edit) }()

		<-entered
		snap := f.store.Snapshot()
		assert.Equal(t, edit, snap.Data)
		assert.Equal(t, profile.StateSaving, snap.State)
		assert.True(t, snap.Unsynced)

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("reconcile takes server values exactly", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "alice", Bio: "hi"}, session.NewStatic("abc"))
		f.backend.On("UpdateProfile", mock.Anything, "abc", editReq).Return(nil)
		// server normalized the display name
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("Bob", "new"), nil)

		require.NoError(t, f.ctrl.SaveProfile(context.Background(), edit))

		snap := f.store.Snapshot()
		assert.Equal(t, profile.Data{DisplayName: "Bob", Bio: "new"}, snap.Data)
		assert.Equal(t, profile.StateIdle, snap.State)
		assert.False(t, snap.Unsynced)
		assert.True(t, snap.Authoritative())
		f.backend.AssertNumberOfCalls(t, "UpdateProfile", 1)
		f.backend.AssertNumberOfCalls(t, "GetProfile", 1)
	})

	t.Run("server error keeps edit unsynced", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "alice", Bio: "hi"}, session.NewStatic("abc"))
		f.backend.On("UpdateProfile", mock.Anything, "abc", editReq).
			Return(&backend.ServerError{Op: "update profile", StatusCode: 500, Message: "database is locked"})

		err := f.ctrl.SaveProfile(context.Background(), edit)
		require.Error(t, err)
		assert.ErrorIs(t, err, profile.ErrSaveFailed)

		snap := f.store.Snapshot()
		assert.Equal(t, edit, snap.Data)
		assert.True(t, snap.Unsynced)
		assert.Equal(t, profile.StateError, snap.State)
		assert.Equal(t, err, snap.LastError)

		reports := f.reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, profile.StageSave, reports[0].Stage)
		var se *backend.ServerError
		require.ErrorAs(t, reports[0].Err, &se)
		assert.Equal(t, 500, se.StatusCode)

		f.backend.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	})

	t.Run("no credential keeps edit and reports token stage", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "alice", Bio: "hi"}, session.NewStatic(""))

		err := f.ctrl.SaveProfile(context.Background(), edit)
		assert.ErrorIs(t, err, profile.ErrSaveFailed)
		assert.ErrorIs(t, err, profile.ErrUnauthenticated)
		assert.Equal(t, edit, f.store.Data())

		reports := f.reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, profile.StageToken, reports[0].Stage)
		assert.ErrorIs(t, reports[0].Err, token.ErrTokenUnavailable)
		f.backend.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reconcile failure is a fetch failure", func(t *testing.T) {
		f := newFixture(t, profile.Data{DisplayName: "alice", Bio: "hi"}, session.NewStatic("abc"))
		f.backend.On("UpdateProfile", mock.Anything, "abc", editReq).Return(nil)
		f.backend.On("GetProfile", mock.Anything, "abc").
			Return(nil, &backend.NetworkError{Op: "fetch profile", Err: errors.New("reset")})

		err := f.ctrl.SaveProfile(context.Background(), edit)
		assert.ErrorIs(t, err, profile.ErrFetchFailed)

		snap := f.store.Snapshot()
		assert.Equal(t, edit, snap.Data)
		assert.True(t, snap.Unsynced)

		reports := f.reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, profile.StageFetch, reports[0].Stage)
	})
}

func TestSaveFailureRevert(t *testing.T) {
	edit := profile.Data{DisplayName: "bob", Bio: "new"}
	saveErr := &backend.ServerError{Op: "update profile", StatusCode: 500}

	t.Run("reverts to last confirmed profile", func(t *testing.T) {
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"),
			profile.WithSaveFailurePolicy(profile.SaveFailureRevert))
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("alice", "hi"), nil)
		f.backend.On("UpdateProfile", mock.Anything, "abc", mock.Anything).Return(saveErr)

		require.NoError(t, f.ctrl.FetchProfile(context.Background()))
		require.Error(t, f.ctrl.SaveProfile(context.Background(), edit))

		snap := f.store.Snapshot()
		assert.Equal(t, profile.Data{DisplayName: "alice", Bio: "hi"}, snap.Data)
		assert.False(t, snap.Unsynced)
		assert.Equal(t, profile.StateError, snap.State)
	})

	t.Run("reverts to pre-save data when nothing was confirmed", func(t *testing.T) {
		initial := profile.Data{DisplayName: "carol", Bio: "draft"}
		f := newFixture(t, initial, session.NewStatic("abc"),
			profile.WithSaveFailurePolicy(profile.SaveFailureRevert))
		f.backend.On("UpdateProfile", mock.Anything, "abc", mock.Anything).Return(saveErr)

		require.Error(t, f.ctrl.SaveProfile(context.Background(), edit))
		assert.Equal(t, initial, f.store.Data())
	})
}

func TestStaleResultIsDiscarded(t *testing.T) {
	f := newFixture(t, profile.Data{}, session.NewStatic("abc"))

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.On("GetProfile", mock.Anything, "abc").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(testutil.Profile("stale", "stale"), nil).Once()
	f.backend.On("UpdateProfile", mock.Anything, "abc", mock.Anything).Return(nil)
	f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("bob", "new"), nil).Once()

	slow := make(chan error, 1)
	go func() { slow <- f.ctrl.FetchProfile(context.Background()) }()
	<-entered

	// issued later, finishes first
	require.NoError(t, f.ctrl.SaveProfile(context.Background(), profile.Data{DisplayName: "bob", Bio: "new"}))
	assert.Equal(t, profile.Data{DisplayName: "bob", Bio: "new"}, f.store.Data())

	close(release)
	require.NoError(t, <-slow)

	snap := f.store.Snapshot()
	assert.Equal(t, profile.Data{DisplayName: "bob", Bio: "new"}, snap.Data)
	assert.Equal(t, profile.StateIdle, snap.State)
}

func TestOverlappingSaves(t *testing.T) {
	first := profile.Data{DisplayName: "A", Bio: "a"}
	second := profile.Data{DisplayName: "B", Bio: "b"}

	type blocked struct {
		entered chan struct{}
		release chan struct{}
	}
	block := func(f *fixture, data profile.Data, err error) blocked {
		b := blocked{entered: make(chan struct{}), release: make(chan struct{})}
		req := backend.UpdateRequest{DisplayName: data.DisplayName, Bio: data.Bio}
		f.backend.On("UpdateProfile", mock.Anything, "abc", req).
			Run(func(mock.Arguments) {
				close(b.entered)
				<-b.release
			}).
			Return(err)
		return b
	}

	// start issues the first save, then the second while the first is still
	// in flight, and lets the first one finish including its reconcile.
	start := func(t *testing.T, f *fixture, a, b blocked) chan error {
		doneA := make(chan error, 1)
		go func() { doneA <- f.ctrl.SaveProfile(context.Background(), first) }()
		<-a.entered

		doneB := make(chan error, 1)
		go func() { doneB <- f.ctrl.SaveProfile(context.Background(), second) }()
		<-b.entered

		close(a.release)
		require.NoError(t, <-doneA)

		snap := f.store.Snapshot()
		assert.Equal(t, second, snap.Data, "the earlier save's reconcile must not replace a newer edit")
		assert.True(t, snap.Unsynced)
		assert.Equal(t, profile.StateSaving, snap.State)
		return doneB
	}

	t.Run("second save fails", func(t *testing.T) {
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"))
		saveErr := &backend.ServerError{Op: "update profile", StatusCode: 500, Message: "database is locked"}
		a := block(f, first, nil)
		b := block(f, second, saveErr)
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("A", "a"), nil)

		doneB := start(t, f, a, b)
		close(b.release)
		err := <-doneB
		require.ErrorIs(t, err, profile.ErrSaveFailed)

		snap := f.store.Snapshot()
		assert.Equal(t, second, snap.Data)
		assert.True(t, snap.Unsynced)
		assert.Equal(t, profile.StateError, snap.State)
		assert.Equal(t, err, snap.LastError)

		reports := f.reporter.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, profile.StageSave, reports[0].Stage)
	})

	t.Run("second save succeeds", func(t *testing.T) {
		snapshots := storage.NewMemoryStorage()
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"),
			profile.WithSnapshotStore(snapshots, "alice"))
		a := block(f, first, nil)
		b := block(f, second, nil)
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("A", "a"), nil).Once()
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("B", "b"), nil).Once()

		doneB := start(t, f, a, b)
		_, err := snapshots.GetSnapshot(context.Background(), "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound, "a discarded reconcile is not persisted")

		close(b.release)
		require.NoError(t, <-doneB)

		snap := f.store.Snapshot()
		assert.Equal(t, second, snap.Data)
		assert.False(t, snap.Unsynced)
		assert.Equal(t, profile.StateIdle, snap.State)
		assert.True(t, snap.Authoritative())
		assert.Empty(t, f.reporter.Reports())

		persisted, err := snapshots.GetSnapshot(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "B", persisted.DisplayName)
		assert.Equal(t, "b", persisted.Bio)
		f.backend.AssertNumberOfCalls(t, "GetProfile", 2)
	})
}

func TestCancellation(t *testing.T) {
	t.Run("close cancels in-flight fetch without reporting", func(t *testing.T) {
		initial := profile.Data{DisplayName: "carol"}
		f := newFixture(t, initial, session.NewStatic("abc"))

		entered := make(chan struct{})
		f.backend.On("GetProfile", mock.Anything, "abc").
			Run(func(args mock.Arguments) {
				close(entered)
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, &backend.NetworkError{Op: "fetch profile", Err: context.Canceled})

		done := make(chan error, 1)
		go func() { done <- f.ctrl.FetchProfile(context.Background()) }()
		<-entered

		f.ctrl.Close()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.Equal(t, initial, f.store.Data())
		assert.Empty(t, f.reporter.Reports())

		assert.ErrorIs(t, f.ctrl.FetchProfile(context.Background()), profile.ErrClosed)
	})

	t.Run("lifetime end cancels in-flight save", func(t *testing.T) {
		lifetime, end := context.WithCancel(context.Background())
		store := profile.NewStore(profile.Data{})
		tokens := token.NewCache(session.NewStatic("abc"))
		defer tokens.Close()
		be := &testutil.MockBackend{}
		reporter := &testutil.RecordingReporter{}
		ctrl := profile.NewController(lifetime, store, tokens, be, profile.WithReporter(reporter))
		defer ctrl.Close()

		entered := make(chan struct{})
		be.On("UpdateProfile", mock.Anything, "abc", mock.Anything).
			Run(func(args mock.Arguments) {
				close(entered)
				<-args.Get(0).(context.Context).Done()
			}).
			Return(context.Canceled)

		done := make(chan error, 1)
		go func() { done <- ctrl.SaveProfile(context.Background(), profile.Data{DisplayName: "bob"}) }()
		<-entered

		end()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.Empty(t, reporter.Reports())
		assert.True(t, store.Snapshot().Unsynced)
		be.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	})

	t.Run("caller context cancellation", func(t *testing.T) {
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"))
		f.backend.On("GetProfile", mock.Anything, "abc").
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := f.ctrl.FetchProfile(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, profile.StateIdle, f.store.Snapshot().State)
		assert.Empty(t, f.reporter.Reports())
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("shows persisted snapshot until first fetch", func(t *testing.T) {
		snapshots := storage.NewMemoryStorage()
		require.NoError(t, snapshots.PutSnapshot(ctx, &storage.ProfileSnapshot{
			Account: "alice", DisplayName: "Alice", Bio: "from last time",
		}))

		f := newFixture(t, profile.Data{}, session.NewStatic("abc"), profile.WithSnapshotStore(snapshots, "alice"))
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("Alice", "fresh"), nil)

		restored, err := f.ctrl.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, restored)

		snap := f.store.Snapshot()
		assert.Equal(t, profile.Data{DisplayName: "Alice", Bio: "from last time"}, snap.Data)
		assert.True(t, snap.Restored)
		assert.False(t, snap.Authoritative())

		require.NoError(t, f.ctrl.FetchProfile(ctx))
		snap = f.store.Snapshot()
		assert.False(t, snap.Restored)
		assert.True(t, snap.Authoritative())

		persisted, err := snapshots.GetSnapshot(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "fresh", persisted.Bio)
	})

	t.Run("never overwrites fresher data", func(t *testing.T) {
		snapshots := storage.NewMemoryStorage()
		require.NoError(t, snapshots.PutSnapshot(ctx, &storage.ProfileSnapshot{Account: "alice", DisplayName: "Old"}))

		f := newFixture(t, profile.Data{}, session.NewStatic("abc"), profile.WithSnapshotStore(snapshots, "alice"))
		f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("New", ""), nil)
		require.NoError(t, f.ctrl.FetchProfile(ctx))

		restored, err := f.ctrl.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, "New", f.store.Data().DisplayName)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		f := newFixture(t, profile.Data{}, session.NewStatic("abc"),
			profile.WithSnapshotStore(storage.NewMemoryStorage(), "alice"))

		restored, err := f.ctrl.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, restored)
	})

	t.Run("forget deletes snapshot", func(t *testing.T) {
		snapshots := storage.NewMemoryStorage()
		require.NoError(t, snapshots.PutSnapshot(ctx, &storage.ProfileSnapshot{Account: "alice"}))

		f := newFixture(t, profile.Data{}, session.NewStatic("abc"), profile.WithSnapshotStore(snapshots, "alice"))
		require.NoError(t, f.ctrl.Forget(ctx))

		_, err := snapshots.GetSnapshot(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSubscriberSeesTransitions(t *testing.T) {
	f := newFixture(t, profile.Data{}, session.NewStatic("abc"))
	f.backend.On("GetProfile", mock.Anything, "abc").Return(testutil.Profile("alice", "hi"), nil)

	updates, unsubscribe := f.store.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.ctrl.FetchProfile(context.Background()))

	var last profile.Snapshot
	select {
	case last = <-updates:
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	assert.Equal(t, profile.StateIdle, last.State)
	assert.Equal(t, "alice", last.Data.DisplayName)
}

func TestReporters(t *testing.T) {
	var got []profile.Stage
	rec := &testutil.RecordingReporter{}
	multi := profile.MultiReporter{
		rec,
		profile.ReporterFunc(func(stage profile.Stage, err error) { got = append(got, stage) }),
		profile.LogReporter{},
	}

	multi.Report(profile.StageSave, &backend.ServerError{StatusCode: 400, Field: "displayName"})
	assert.Equal(t, []profile.Stage{profile.StageSave}, got)
	require.Len(t, rec.Reports(), 1)
	assert.Equal(t, profile.StageSave, rec.Reports()[0].Stage)
}
