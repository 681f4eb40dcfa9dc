package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSecretCleaner struct {
	mock.Mock
}

func (m *MockSecretCleaner) ClearExpiredSecrets(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockStaleLogFailer struct {
	mock.Mock
}

func (m *MockStaleLogFailer) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	args := m.Called(ctx, cutoff, reason)
	return args.Get(0).(int64), args.Error(1)
}

func newTestScheduler(users SecretCleaner, logs StaleLogFailer, now time.Time) *Scheduler {
	s := New(users, logs, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestClearExpiredSecrets(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		n    int64
		err  error
	}{
		{name: "cleared", n: 3},
		{name: "nothing to do"},
		{name: "store error", err: errors.New("database is locked")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockSecretCleaner)
			users.On("ClearExpiredSecrets", mock.Anything, now).Return(tt.n, tt.err).Once()

			assert.NotPanics(t, newTestScheduler(users, nil, now).ClearExpiredSecrets)
			users.AssertExpectations(t)
		})
	}
}

func TestFailStalePending_UsesCutoff(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	logs := new(MockStaleLogFailer)
	logs.On("FailStalePending", mock.Anything, now.Add(-5*time.Minute), staleReason).Return(int64(2), nil).Once()

	newTestScheduler(nil, logs, now).FailStalePending()

	logs.AssertExpectations(t)
}

func TestStartRegistersJobs(t *testing.T) {
	s := New(new(MockSecretCleaner), new(MockStaleLogFailer), nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	entries := s.cron.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.True(t, e.Next.After(time.Now()))
		assert.True(t, e.Next.Before(time.Now().Add(11*time.Minute)))
	}
}
