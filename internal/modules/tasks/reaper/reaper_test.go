package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/Soravit-Ice/Random-Call-BE/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, startedAgo time.Duration) (*store.Memory, models.CallLogModel) {
	t.Helper()
	mem := store.NewMemory()
	mem.SetClock(func() time.Time { return now })
	caller := mem.PutUser(models.UserModel{Email: "caller@example.com", IsOnline: true, InCall: true})
	callee := mem.PutUser(models.UserModel{Email: "callee@example.com", IsOnline: true, InCall: true})

	call := models.CallLogModel{CallerID: caller.ID, CalleeID: callee.ID, RoomID: "room-1", StartedAt: now.Add(-startedAgo)}
	require.NoError(t, mem.CreateCallLog(context.Background(), &call))
	return mem, call
}

func TestSweepClosesStaleCall(t *testing.T) {
	mem, call := seed(t, 40*time.Minute)
	var closed []string
	r := New(mem,
		WithClock(func() time.Time { return now }),
		OnClose(func(_ context.Context, c models.CallLogModel) { closed = append(closed, c.RoomID) }),
	)

	n, err := r.Sweep(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"room-1"}, closed)

	got, err := mem.FindCallLog(context.Background(), call.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(now))

	for _, id := range []string{call.CallerID, call.CalleeID} {
		u, err := mem.FindUser(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, u.InCall)
	}
}

func TestSweepLeavesFreshCall(t *testing.T) {
	mem, call := seed(t, 10*time.Minute)
	r := New(mem, WithClock(func() time.Time { return now }))

	n, err := r.Sweep(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := mem.FindCallLog(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EndedAt)
	u, err := mem.FindUser(context.Background(), call.CallerID)
	require.NoError(t, err)
	assert.True(t, u.InCall)
}

func TestSweepIsIdempotent(t *testing.T) {
	mem, call := seed(t, 2*time.Hour)
	r := New(mem, WithClock(func() time.Time { return now }))

	n, err := r.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	first, err := mem.FindCallLog(context.Background(), call.ID)
	require.NoError(t, err)

	later := now.Add(5 * time.Minute)
	r = New(mem, WithClock(func() time.Time { return later }))
	n, err = r.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	second, err := mem.FindCallLog(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Equal(t, first.EndedAt, second.EndedAt)
}

type failingStore struct {
	store.Store
}

func (failingStore) FindStaleCallLogs(context.Context, time.Time) ([]models.CallLogModel, error) {
	return nil, errors.New("connection refused")
}

func TestSweepPropagatesStoreFailure(t *testing.T) {
	_, err := New(failingStore{}).Sweep(context.Background(), time.Minute)
	assert.Error(t, err)
}

func TestJobRunsSweep(t *testing.T) {
	mem, call := seed(t, 40*time.Minute)
	job := New(mem, WithClock(func() time.Time { return now })).Job(5*time.Minute, 30*time.Minute)
	assert.Equal(t, JobName, job.Name)
	assert.Equal(t, 5*time.Minute, job.Interval)

	require.NoError(t, job.Fn(context.Background()))
	got, err := mem.FindCallLog(context.Background(), call.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.EndedAt)
}
