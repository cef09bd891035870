package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"palaver/internal/api"
	"palaver/internal/metrics"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

type AdminServerConfig struct {
	Addr     string
	User     string
	Password string
}

func NewAdminServer(store api.AdminStore, hub api.Realtime, m *metrics.Metrics, cfg AdminServerConfig) *AdminServer {
	adminHandler := api.NewAdminHandler(store, hub)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.SyncUserHandler)
	mux.HandleFunc("POST /admin/friends", adminHandler.AddFriendHandler)
	mux.HandleFunc("POST /admin/blocks", adminHandler.AddBlockHandler)
	mux.HandleFunc("POST /admin/chats", adminHandler.CreateChatHandler)
	mux.HandleFunc("POST /admin/chats/{id}/participants", adminHandler.AddParticipantHandler)
	mux.HandleFunc("GET /admin/online", adminHandler.OnlineHandler)
	mux.HandleFunc("GET /admin/chats/{id}/unread", adminHandler.UnreadHandler)
	mux.Handle("GET /metrics", m.Handler())

	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: api.RequireBasicAuth(cfg.User, cfg.Password, mux),
		},
	}
}

func (s *AdminServer) Start() error {
	slog.Info("admin API started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
