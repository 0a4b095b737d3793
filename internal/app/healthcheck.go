package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/dag"
)

// healthHandler reports that the process is alive.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler returns the node status report of the current run as JSON.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report := a.Report()
	if report == nil {
		report = &dag.Report{Stage: dag.StagePending, Counts: map[string]int{}, Nodes: []dag.NodeStatus{}}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		a.logger.Error("Failed to encode status report.", "error", err)
	}
}

func (a *App) healthRouter() http.Handler {
	router := httprouter.New()
	router.GET("/health", a.healthHandler)
	router.GET("/status", a.statusHandler)
	return router
}

// startHealthcheckServer binds the health check port and serves in the
// background. It returns the bound address.
func (a *App) startHealthcheckServer(ctx context.Context, port int) (string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", fmt.Errorf("health check server: %w", err)
	}
	srv := &http.Server{
		Handler:           a.healthRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.serverMu.Lock()
	a.httpServer = srv
	a.serverMu.Unlock()

	addr := ln.Addr().String()
	go func() {
		logger.Info("🩺 Health check server starting", "address", addr)
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return addr, nil
}

func (a *App) closeHealthcheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	a.serverMu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.serverMu.Unlock()
	if srv == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Health check server shut down gracefully.")
	return nil
}
