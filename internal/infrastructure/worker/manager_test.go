package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWorker struct {
	name     string
	startErr error
	stopErr  error
	started  bool
	stopped  bool
	order    *[]string
}

func (m *mockWorker) Name() string { return m.name }

func (m *mockWorker) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockWorker) Stop() error {
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.stopErr
}

func TestManager_Lifecycle(t *testing.T) {
	var order []string
	a := &mockWorker{name: "a", order: &order}
	b := &mockWorker{name: "b", startErr: errors.New("boom"), order: &order}
	c := &mockWorker{name: "c", order: &order}

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	m.Register(c)
	assert.Equal(t, 3, m.Count())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, a.started)
	assert.False(t, b.started)
	assert.True(t, c.started)

	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"c", "b", "a"}, order)

	require.NoError(t, m.StopAll())
}

func TestManager_StopErrorsAreJoined(t *testing.T) {
	m := NewManager(nil)
	m.Register(&mockWorker{name: "a", stopErr: errors.New("stuck")})
	m.Register(&mockWorker{name: "b"})

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: stuck")
}
