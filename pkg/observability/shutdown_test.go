package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsStepsInReverse(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var order []string
	sm.Register("otel", func(context.Context) error { order = append(order, "otel"); return nil })
	sm.Register("cron", func(context.Context) error { order = append(order, "cron"); return nil })

	require.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"cron", "otel"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	ran := false
	sm.Register("last", func(context.Context) error { ran = true; return nil })
	sm.Register("first", func(context.Context) error { return errors.New("boom") })

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first: boom")
	assert.True(t, ran)
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)
	called := make(chan struct{}, 1)
	sm.Register("step", func(context.Context) error { called <- struct{}{}; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.Len(t, called, 1)
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))

	err := func() (err error) {
		defer func() {
			if perr := MustRecover(recover()); perr != nil {
				err = perr
			}
		}()
		panic("bad slot")
	}()
	assert.EqualError(t, err, "panic: bad slot")
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(NopLogger(), "test")
		panic("boom")
	})
}
