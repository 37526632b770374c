package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// HTTP server
// ============================================================================
// Serves the live state stream (/ws/state) and a health check (/healthz).
// Handlers are registered on an explicit mux by main.
// ============================================================================

const httpShutdownTimeout = 3 * time.Second

// healthHandler reports liveness plus the connected state-stream client count.
func healthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		clients := 0
		if hub != nil {
			clients = hub.ClientCount()
		}
		fmt.Fprintf(w, "ok clients=%d\n", clients)
	}
}

// newHTTPMux wires the state stream and health check.
func newHTTPMux(state *StateServer) *http.ServeMux {
	mux := http.NewServeMux()
	state.Register(mux, "/ws/state")
	mux.HandleFunc("/healthz", healthHandler(state.Hub()))
	return mux
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
