package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/engine/core/queue"
)

func TestTaskHandler_DecodesPayload(t *testing.T) {
	t.Parallel()

	type analysisPayload struct {
		Symbol string `json:"symbol"`
		Window int    `json:"window"`
	}

	var got analysisPayload
	h := queue.NewTaskHandler("run_analysis", func(ctx context.Context, p analysisPayload) error {
		got = p
		return nil
	})

	assert.Equal(t, "run_analysis", h.Name())
	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"symbol":"NVDA","window":14}`)))
	assert.Equal(t, analysisPayload{Symbol: "NVDA", Window: 14}, got)
}

func TestTaskHandler_EmptyPayload(t *testing.T) {
	t.Parallel()

	called := false
	h := queue.NewTaskHandler("heartbeat", func(ctx context.Context, p struct{}) error {
		called = true
		return nil
	})

	require.NoError(t, h.Handle(context.Background(), nil))
	assert.True(t, called, "handlers run even without a payload")
}

func TestTaskHandler_MalformedPayload(t *testing.T) {
	t.Parallel()

	h := queue.NewTaskHandler("run_analysis", func(ctx context.Context, p struct{ Window int }) error {
		t.Fatal("handler must not run on undecodable payload")
		return nil
	})

	err := h.Handle(context.Background(), json.RawMessage(`{"window":"not a number"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_analysis")
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry()
	h := queue.NewTaskHandler("fetch_prices", func(ctx context.Context, p struct{}) error { return nil })

	require.NoError(t, reg.Register(h))
	assert.Equal(t, 1, reg.Len())

	err := reg.Register(queue.NewTaskHandler("fetch_prices", func(ctx context.Context, p struct{}) error { return nil }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch_prices")

	got, ok := reg.Get("fetch_prices")
	require.True(t, ok)
	assert.Equal(t, "fetch_prices", got.Name())

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_RegisterAll(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry()
	require.NoError(t, reg.RegisterAll(
		queue.NewTaskHandler("fetch_prices", func(ctx context.Context, p struct{}) error { return nil }),
		queue.NewTaskHandler("run_analysis", func(ctx context.Context, p struct{}) error { return nil }),
	))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_Validate(t *testing.T) {
	t.Parallel()

	reg := queue.NewRegistry()
	require.NoError(t, reg.Register(
		queue.NewTaskHandler("fetch_prices", func(ctx context.Context, p struct{}) error { return nil })))

	assert.NoError(t, reg.Validate("fetch_prices"))
	assert.ErrorIs(t, reg.Validate("fetch_prices", "run_analysis"), queue.ErrHandlerNotFound)
}
