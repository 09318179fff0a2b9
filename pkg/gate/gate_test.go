package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/fledge/pkg/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateOpen(t *testing.T) {
	t.Parallel()

	g := gate.New[int]()

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Open(42)
	}()

	v, err := g.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, g.Released())
}

func TestGateOpenBeforeAwait(t *testing.T) {
	t.Parallel()

	g := gate.New[string]()
	assert.True(t, g.Open("ready"))

	v, err := g.Await(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestGateSecondReleaseIsNoop(t *testing.T) {
	t.Parallel()

	g := gate.New[int]()
	assert.True(t, g.Open(1))
	assert.False(t, g.Open(2))
	assert.False(t, g.Fail(errors.New("late failure")))

	v, err := g.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestGateFail(t *testing.T) {
	t.Parallel()

	errAborted := errors.New("training aborted")
	g := gate.New[int]()
	g.Fail(errAborted)

	_, err := g.Await(context.Background(), time.Second)
	assert.ErrorIs(t, err, errAborted)
}

func TestGateTimeout(t *testing.T) {
	t.Parallel()

	g := gate.New[int]()
	_, err := g.Await(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, gate.ErrTimeout)
}

func TestGateCanceled(t *testing.T) {
	t.Parallel()

	g := gate.New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Await(ctx, time.Minute)
	assert.ErrorIs(t, err, gate.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateClose(t *testing.T) {
	t.Parallel()

	g := gate.New[int]()
	g.Open(7)
	g.Close()
	assert.False(t, g.Released())

	_, err := g.Await(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, gate.ErrTimeout)

	assert.True(t, g.Open(8))
	v, err := g.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 8, v)
}
