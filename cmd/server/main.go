// Command server is the StreamXR session/streaming core entrypoint: it wires
// the Asset Manager, LOD Generator, Room/Object Registries and Hub together,
// serves the duplex WebSocket endpoint new sessions connect to, exposes the
// HTTP asset admin surface, and shuts down gracefully on SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamxr/core/internal/adminapi"
	"github.com/streamxr/core/internal/assets"
	"github.com/streamxr/core/internal/config"
	"github.com/streamxr/core/internal/hub"
	"github.com/streamxr/core/internal/lodgen"
	"github.com/streamxr/core/internal/metrics"
	"github.com/streamxr/core/internal/objects"
	"github.com/streamxr/core/internal/rooms"
	"github.com/streamxr/core/internal/session"
)

func main() {
	cfg := config.Get()
	m := metrics.New()

	if err := os.MkdirAll(cfg.Assets.RootDir, 0o755); err != nil {
		log.Fatalf("failed to ensure asset root: %v", err)
	}

	gen, err := lodgen.New(cfg.Assets.DecimatorPath, cfg.Assets.CacheDir, cfg.Assets.MaxGenerations, m)
	if err != nil {
		log.Fatalf("failed to initialise LOD generator: %v", err)
	}

	assetMgr, err := assets.New(cfg.Assets.RootDir, gen, m)
	if err != nil {
		log.Fatalf("failed to initialise asset manager: %v", err)
	}

	roomRegistry := rooms.New(cfg.Server.DefaultRoom)
	objectRegistry := objects.New(cfg.Objects.OwnershipTimeout, cfg.Objects.SweepInterval)
	h := hub.New(assetMgr, roomRegistry, objectRegistry, m)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", newWebSocketHandler(h, cfg, m))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","sessions":%d}`, h.SessionCount())
	})

	wsServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: mux,
	}

	adminServer := &http.Server{
		Addr:    ":" + cfg.Server.AdminPort,
		Handler: adminapi.New(assetMgr, h).Router(),
	}

	go func() {
		slog.Info("admin API listening", "port", cfg.Server.AdminPort)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = wsServer.Shutdown(ctx)
		_ = adminServer.Shutdown(ctx)
		objectRegistry.Close()
	}()

	slog.Info("StreamXR session core starting", "port", cfg.Server.Port)
	if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWebSocketHandler accepts a connection, enforces the session saturation
// cap, and starts a Broker for it.
func newWebSocketHandler(h *hub.Hub, cfg *config.Config, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.SessionCount() >= cfg.Sessions.MaxConcurrent {
			m.SessionsRejected.Inc()
			http.Error(w, "server at capacity", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		clientID := uuid.NewString()
		m.SessionsTotal.Inc()
		m.SessionsActive.Inc()

		broker := session.New(clientID, conn, h, cfg, m)
		requestedRoom := r.URL.Query().Get("room")

		go func() {
			defer m.SessionsActive.Dec()
			broker.Run(requestedRoom)
		}()
	}
}
