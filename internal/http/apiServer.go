package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"palaver/internal/api"
	"palaver/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer serves the websocket endpoint. Everything else a client
// needs (history, uploads, profiles) lives in a separate service.
// Websocket connections are closed when ctx is done.
func NewAPIServer(ctx context.Context, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.HealthHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:        addr,
			Handler:     mux,
			BaseContext: func(net.Listener) context.Context { return ctx },
		},
	}
}

func (s *APIServer) Start() error {
	slog.Info("server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
