// Package transport exposes the two inbound channels (provider webhook and
// duplex websocket) plus the admin REST API for calls and agent profiles.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/convoy/pkg/dialog"
	"github.com/harunnryd/convoy/pkg/store"
	"github.com/harunnryd/convoy/pkg/telephony"
)

// Config tunes the HTTP surface.
type Config struct {
	// WebhookSecret enables HMAC verification of webhook bodies when set.
	WebhookSecret string
	// PublicURL is the externally reachable base for callback URLs.
	PublicURL string
	// KeepaliveInterval is the websocket ping cadence. Zero means 20s.
	KeepaliveInterval time.Duration
}

// Server wires the channels to the dialogue engine.
type Server struct {
	store      store.Store
	engine     *dialog.Engine
	summarizer *dialog.Summarizer
	telephony  telephony.Provider
	logger     *slog.Logger
	cfg        Config
	upgrader   websocket.Upgrader
}

func NewServer(st store.Store, eng *dialog.Engine, sum *dialog.Summarizer, tel telephony.Provider, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 20 * time.Second
	}
	return &Server{
		store:      st,
		engine:     eng,
		summarizer: sum,
		telephony:  tel,
		logger:     logger,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook", s.handleWebhook)
	r.Get("/ws/{callID}", s.handleDuplex)

	r.Route("/api", func(r chi.Router) {
		r.Route("/calls", func(r chi.Router) {
			r.Post("/start", s.handleStartCall)
			r.Get("/", s.handleListCalls)
			r.Get("/{callID}", s.handleGetCall)
			r.Post("/{callID}/process", s.handleProcessCall)
		})
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.handleCreateAgent)
			r.Get("/", s.handleListAgents)
			r.Get("/{agentID}", s.handleGetAgent)
			r.Patch("/{agentID}", s.handleUpdateAgent)
			r.Delete("/{agentID}", s.handleDeleteAgent)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(v)
}
