package http_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/absmach/fledge/pkg/server"
	httpserver "github.com/absmach/fledge/pkg/server/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	return strconv.Itoa(lis.Addr().(*net.TCPAddr).Port)
}

func TestServerStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := server.Config{Host: "127.0.0.1", Port: freePort(t)}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httpserver.NewServer(ctx, cancel, "test", cfg, handler, logger)

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()

	url := "http://" + net.JoinHostPort(cfg.Host, cfg.Port)
	require.Eventually(t, func() bool {
		res, err := http.Get(url)
		if err != nil {
			return false
		}
		res.Body.Close()

		return res.StatusCode == http.StatusTeapot
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStopSignalHandlerReturnsOnContextDone(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, server.StopSignalHandler(ctx, cancel, logger, "test"))
}
