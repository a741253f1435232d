package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserve/pkg/component/storage"
)

type mockClient struct {
	name    string
	healthy bool
	closed  bool
}

func (m *mockClient) Name() string { return m.name }

func (m *mockClient) Ping(context.Context) error {
	if !m.healthy {
		return context.DeadlineExceeded
	}
	return nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func (m *mockClient) Health() storage.HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return m.Ping(ctx)
	}
}

var _ storage.Client = (*mockClient)(nil)

func TestRegisterAndGet(t *testing.T) {
	mgr := storage.NewManager()
	client := &mockClient{name: "mongo", healthy: true}

	require.NoError(t, mgr.Register("mongo", client))
	assert.True(t, mgr.Has("mongo"))

	got, err := mgr.Get("mongo")
	require.NoError(t, err)
	assert.Equal(t, client, got)
}

func TestRegisterDuplicate(t *testing.T) {
	mgr := storage.NewManager()
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis"}))

	err := mgr.Register("redis", &mockClient{name: "redis"})
	assert.ErrorIs(t, err, storage.ErrClientAlreadyExists)
}

func TestGetUnknown(t *testing.T) {
	mgr := storage.NewManager()

	_, err := mgr.Get("missing")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestHealthCheckAll(t *testing.T) {
	mgr := storage.NewManager()
	mgr.MustRegister("healthy", &mockClient{name: "healthy", healthy: true})
	mgr.MustRegister("broken", &mockClient{name: "broken", healthy: false})

	statuses := mgr.HealthCheckAll(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses["healthy"].Healthy)
	assert.False(t, statuses["broken"].Healthy)
	assert.False(t, mgr.AllHealthy(context.Background()))
}

func TestCloseAll(t *testing.T) {
	mgr := storage.NewManager()
	a := &mockClient{name: "a", healthy: true}
	b := &mockClient{name: "b", healthy: true}
	mgr.MustRegister("a", a)
	mgr.MustRegister("b", b)

	require.NoError(t, mgr.CloseAll())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.False(t, mgr.Has("a"))
}

func TestStorageErrorWrapping(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := storage.ErrConnectionFailed.WithCause(cause)

	assert.ErrorIs(t, err, storage.ErrConnectionFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CONNECTION_FAILED")
}
