package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, CanTransition(StatusUninitialized, StatusInitializing))
	assert.True(t, CanTransition(StatusInitializing, StatusReady))
	assert.True(t, CanTransition(StatusReady, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusPaused))
	assert.True(t, CanTransition(StatusRunning, StatusStopped))
	assert.True(t, CanTransition(StatusPaused, StatusRunning))
	assert.True(t, CanTransition(StatusPaused, StatusStopped))
}

func TestCanTransition_ErrorFromAnyState(t *testing.T) {
	for _, s := range []Status{StatusUninitialized, StatusInitializing, StatusReady, StatusRunning, StatusPaused, StatusStopped} {
		assert.True(t, CanTransition(s, StatusError), "expected %s -> Error to be legal", s)
	}
}

func TestCanTransition_RejectsIllegalJumps(t *testing.T) {
	assert.False(t, CanTransition(StatusUninitialized, StatusRunning))
	assert.False(t, CanTransition(StatusStopped, StatusRunning))
	assert.False(t, CanTransition(StatusReady, StatusPaused))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Uninitialized", StatusUninitialized.String())
	assert.Equal(t, "Error", StatusError.String())
}

func TestFactoryRegistry_RegisterAndNew(t *testing.T) {
	r := NewFactoryRegistry()
	r.Register("echo", func(cfg map[string]any) (Adapter, error) {
		return &fakeAdapter{name: "echo-1", factoryType: "echo"}, nil
	})

	a, err := r.New("echo", nil)
	assert.NoError(t, err)
	assert.Equal(t, "echo-1", a.Name())

	_, err = r.New("missing", nil)
	assert.Error(t, err)
}

func TestFactoryRegistry_Types(t *testing.T) {
	r := NewFactoryRegistry()
	r.Register("a", func(map[string]any) (Adapter, error) { return nil, nil })
	r.Register("b", func(map[string]any) (Adapter, error) { return nil, nil })
	assert.ElementsMatch(t, []string{"a", "b"}, r.Types())
}

type fakeAdapter struct {
	name        string
	factoryType string
	initErr     error
	startErr    error
	stopErr     error
}

func (f *fakeAdapter) Name() string                        { return f.name }
func (f *fakeAdapter) FactoryType() string                 { return f.factoryType }
func (f *fakeAdapter) Initialize(_ context.Context) error  { return f.initErr }
func (f *fakeAdapter) Start(_ context.Context) error       { return f.startErr }
func (f *fakeAdapter) Stop(_ context.Context) error        { return f.stopErr }
