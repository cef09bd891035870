package ws

import (
	"log/slog"
	"net/http"
	"slices"

	"palaver/internal/metrics"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type ServerConfig struct {
	// AllowedOrigins lists the accepted Origin headers. Empty allows any origin.
	AllowedOrigins []string
	SendBuffer     int
	EventRate      float64
	EventBurst     int
}

type Server struct {
	relay    *Relay
	metrics  *metrics.Metrics
	cfg      ServerConfig
	upgrader *websocket.Upgrader
}

func NewServer(relay *Relay, m *metrics.Metrics, cfg ServerConfig) *Server {
	return &Server{
		relay:   relay,
		metrics: m,
		cfg:     cfg,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.AllowedOrigins) == 0 {
					return true
				}
				return slices.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleConnections upgrades the request and serves the connection until it closes.
// Identity is established later by the authenticate event.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("error upgrading to websocket", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConnection(s.relay, ws, ConnectionOptions{
		SendBuffer: s.cfg.SendBuffer,
		EventRate:  rate.Limit(s.cfg.EventRate),
		EventBurst: s.cfg.EventBurst,
		OnDrop:     s.metrics.Dropped.Inc,
	})

	s.metrics.Connections.Inc()
	defer s.metrics.Connections.Dec()

	slog.Debug("connection opened", "conn_id", conn.ID(), "remote_addr", r.RemoteAddr)
	if err := conn.Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Debug("connection closed with error", "conn_id", conn.ID(), "error", err)
	}
	slog.Debug("connection closed", "conn_id", conn.ID())
}
