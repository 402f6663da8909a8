// /servicehost/internal/registry/registry_test.go
package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goletan/servicehost/internal/lifecycle"
	"github.com/goletan/servicehost/internal/registry"
	"github.com/goletan/servicehost/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockConn struct{ id string }

func (m mockConn) ID() string   { return m.id }
func (m mockConn) Close() error { return nil }

// mockBinder records the order in which services are bound and released.
type mockBinder struct {
	mu       sync.Mutex
	failFor  map[string]bool
	journal  []string
	released map[string]bool
}

func newMockBinder() *mockBinder {
	return &mockBinder{failFor: map[string]bool{}, released: map[string]bool{}}
}

func (m *mockBinder) Bind(_ context.Context, desc types.Descriptor, n types.Notifier) error {
	m.mu.Lock()
	m.journal = append(m.journal, "bind:"+desc.Name)
	fail := m.failFor[desc.Name]
	m.mu.Unlock()

	if fail {
		return errors.New("start failed")
	}
	n.Connected(mockConn{id: desc.Name})
	return nil
}

func (m *mockBinder) Unbind(_ context.Context, conn types.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, "unbind:"+conn.ID())
	m.released[conn.ID()] = true
	return nil
}

func (m *mockBinder) Terminate(_ context.Context, desc types.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, "terminate:"+desc.Name)
	return nil
}

func newRegistry(t *testing.T, b types.Binder, names ...string) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry(zap.NewNop())
	for _, name := range names {
		c := lifecycle.New(types.Descriptor{Name: name, ControlAddr: "127.0.0.1:0"}, b, zap.NewNop(), nil)
		require.NoError(t, reg.Register(c))
	}
	return reg
}

func TestServiceRegistry(t *testing.T) {
	b := newMockBinder()
	reg := newRegistry(t, b, "login", "channel")
	ctx := context.Background()

	require.NoError(t, reg.StartAll(ctx))
	for _, name := range reg.List() {
		c, err := reg.Get(name)
		require.NoError(t, err)
		assert.True(t, c.IsBound(), name)
	}

	require.NoError(t, reg.StopAll(ctx))
	require.NoError(t, reg.ShutdownAll(ctx))

	assert.Equal(t, []string{
		"bind:login", "bind:channel",
		"unbind:channel", "unbind:login",
		"terminate:channel", "terminate:login",
	}, b.journal)
}

func TestServiceRegistryWithFailures(t *testing.T) {
	b := newMockBinder()
	b.failFor["channel"] = true
	reg := newRegistry(t, b, "login", "channel")

	err := reg.StartAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrBindFailed)

	login, err := reg.Get("login")
	require.NoError(t, err)
	assert.True(t, login.IsBound(), "one failing service must not block the others")

	channel, err := reg.Get("channel")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Unbound, channel.State())
}

func TestServiceRegistryRejectsDuplicates(t *testing.T) {
	b := newMockBinder()
	reg := newRegistry(t, b, "login")

	dup := lifecycle.New(types.Descriptor{Name: "login"}, b, nil, nil)
	assert.ErrorIs(t, reg.Register(dup), registry.ErrAlreadyRegistered)

	_, err := reg.Get("cash-shop")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, []string{"login"}, reg.List())
}
