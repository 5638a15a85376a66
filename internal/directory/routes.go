package directory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/logging"
)

// NewRouter exposes the hub at /ws and a liveness check at /health.
func NewRouter(hub *Hub, ws config.WebSocketConfig, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.HTTPMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", healthCheck)
	r.Get("/ws", ServeWs(hub, ws))

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Directory is healthy."))
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, cfg config.WebSocketConfig) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  int(cfg.MaxMessageSize),
		WriteBufferSize: int(cfg.MaxMessageSize),
		// Peers are CLI and browser clients on any origin.
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug().Err(err).Msg("upgrade failed")
			return
		}

		client := newClient(hub, conn, cfg, *logger)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
