package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsPhasesInOrder(t *testing.T) {
	m := NewManager()
	m.SetShutdownTimeout(time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	m.RegisterDatabaseShutdown("db", record("db"))
	m.RegisterTransportShutdown("transport", record("transport"))
	m.RegisterHTTPShutdown("http", record("http"))
	m.RegisterPipelineShutdown("pipeline", record("pipeline"))

	require.NoError(t, m.Execute())
	assert.Equal(t, []string{"http", "pipeline", "transport", "db"}, order)
}

func TestExecuteContinuesAfterHookError(t *testing.T) {
	m := NewManager()
	m.SetShutdownTimeout(time.Second)

	ran := false
	m.RegisterHTTPShutdown("failing", func(context.Context) error {
		return errors.New("boom")
	})
	m.RegisterPipelineShutdown("later", func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, m.Execute())
	assert.True(t, ran)
}

func TestExecuteTimesOutSlowHook(t *testing.T) {
	m := NewManager()
	m.SetShutdownTimeout(5 * time.Millisecond)

	m.RegisterHook(ShutdownHook{
		Name:  "slow",
		Phase: PhaseHTTP,
		Shutdown: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	err := m.Execute()
	assert.Error(t, err)
}

func TestShutdownUnblocksWaitForSignal(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	go func() {
		m.WaitForSignal()
		close(done)
	}()

	m.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForSignal did not return after Shutdown")
	}

	// Shutdown must be safe to call more than once.
	m.Shutdown()
}
