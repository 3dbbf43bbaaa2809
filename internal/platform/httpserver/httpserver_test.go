package httpserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("returns nil after a graceful shutdown and runs hooks first", func(t *testing.T) {
		srv := New("127.0.0.1:0", http.NotFoundHandler())
		ctx, cancel := context.WithCancel(context.Background())

		var hooked atomic.Bool
		done := make(chan error, 1)
		go func() {
			done <- Run(ctx, srv, time.Second, func() { hooked.Store(true) })
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
		assert.True(t, hooked.Load())
	})

	t.Run("listen failure is returned without waiting for ctx", func(t *testing.T) {
		srv := New("127.0.0.1:-1", http.NotFoundHandler())
		err := Run(context.Background(), srv, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http server")
	})
}

func TestNewLeavesWriteTimeoutUnset(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Zero(t, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}
