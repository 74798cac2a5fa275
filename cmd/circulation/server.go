package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/internal/jsonlog"
)

func newServer(cfg config.Config, h http.Handler, logger *jsonlog.Logger) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ErrorLog:     log.New(logger, "", 0),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func (a *app) serve(ctx context.Context, wg *sync.WaitGroup, stop context.CancelFunc, logger *jsonlog.Logger) error {
	srv := newServer(a.config, a.handler.Routes(), logger)
	logger.PrintInfo("starting server", map[string]string{
		"addr": srv.Addr,
		"env":  a.config.Server.Env,
	})
	return run(ctx, srv, a.config.Server.ShutdownTimeout, wg, stop, logger)
}

// run serves until ctx is done. Shutdown drains open connections for at most
// timeout, then cancels the background loops through stop and waits on wg.
// stop is called on every return path.
func run(ctx context.Context, srv *http.Server, timeout time.Duration, wg *sync.WaitGroup, stop context.CancelFunc, logger *jsonlog.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.PrintInfo("shutting down server", map[string]string{
		"addr": srv.Addr,
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	stop()
	logger.PrintInfo("completing background tasks", nil)
	wg.Wait()
	if err != nil {
		return err
	}
	if err := <-listenErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.PrintInfo("stopped server", map[string]string{
		"addr": srv.Addr,
	})
	return nil
}
