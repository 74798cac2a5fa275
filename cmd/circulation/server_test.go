package main

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(addr string) *http.Server {
	var cfg config.Config
	srv := newServer(cfg, http.NotFoundHandler(), jsonlog.New(io.Discard, jsonlog.LevelOff))
	srv.Addr = addr
	return srv
}

func TestRunWaitsForBackgroundWork(t *testing.T) {
	bgCtx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var finished atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-bgCtx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testServer("127.0.0.1:0"), time.Second, &wg, stop, jsonlog.New(io.Discard, jsonlog.LevelOff))
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assert.Error(t, bgCtx.Err())
	assert.True(t, finished.Load())
}

func TestRunReturnsListenError(t *testing.T) {
	bgCtx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	err := run(context.Background(), testServer("127.0.0.1:-1"), time.Second, &wg, stop, jsonlog.New(io.Discard, jsonlog.LevelOff))
	assert.Error(t, err)
	assert.Error(t, bgCtx.Err())
}

func TestNewServerUsesConfig(t *testing.T) {
	var cfg config.Config
	cfg.Server.Port = 4321
	cfg.Server.ReadTimeout = 2 * time.Second
	cfg.Server.WriteTimeout = 3 * time.Second
	cfg.Server.IdleTimeout = 4 * time.Second

	srv := newServer(cfg, http.NotFoundHandler(), jsonlog.New(io.Discard, jsonlog.LevelOff))
	assert.Equal(t, ":4321", srv.Addr)
	assert.Equal(t, 2*time.Second, srv.ReadTimeout)
	assert.Equal(t, 3*time.Second, srv.WriteTimeout)
	assert.Equal(t, 4*time.Second, srv.IdleTimeout)
	assert.NotNil(t, srv.ErrorLog)
}
