package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mtzanidakis/hive/internal/config"
	"github.com/mtzanidakis/hive/internal/natsbus"
	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/mtzanidakis/hive/internal/store"
	"github.com/mtzanidakis/hive/internal/swarm"
	"github.com/mtzanidakis/hive/internal/swarmstate"
	"github.com/nats-io/nats.go"
)

// Swarms is the swarm manager surface the API needs.
type Swarms interface {
	List() []swarm.Snapshot
	Get(swarmID string) (*swarm.Machine, bool)
	Dispatch(ctx context.Context, ev swarm.Event) error
	Stop(ctx context.Context, swarmID string, mode swarm.StopMode, reason string) (swarm.Stats, error)
}

// Contexts reads persisted swarm state.
type Contexts interface {
	GetContext(ctx context.Context, swarmID string) (*swarmstate.SwarmState, error)
	Changes(ctx context.Context, swarmID string, limit int) ([]store.ChangeRecord, error)
}

type Server struct {
	swarms     Swarms
	contexts   Contexts
	navigators *navigator.Registry
	nats       *natsbus.Client
	hub        *Hub
	cfg        config.WebConfig
	version    string
	startedAt  time.Time
	sub        *nats.Subscription
}

// NewServer wires the API. client may be nil, in which case no events are
// relayed to websocket clients.
func NewServer(swarms Swarms, contexts Contexts, navigators *navigator.Registry, client *natsbus.Client, cfg config.WebConfig, version string) *Server {
	return &Server{
		swarms:     swarms,
		contexts:   contexts,
		navigators: navigators,
		nats:       client,
		hub:        NewHub(),
		cfg:        cfg,
		version:    version,
		startedAt:  time.Now(),
	}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return s.withMiddleware(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	if err := s.subscribeEvents(); err != nil {
		return err
	}
	defer s.unsubscribeEvents()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" && !s.checkAuth(w, r) {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth validates Basic Auth. Returns true if authenticated.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if _, pass, ok := r.BasicAuth(); ok && subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Auth)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="hive"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Server) subscribeEvents() error {
	if s.nats == nil {
		return nil
	}
	// Forward all event topics to WebSocket as raw JSON
	sub, err := s.nats.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		var payload any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			slog.Warn("invalid NATS event payload", "subject", msg.Subject, "error", err)
			return
		}
		s.hub.Broadcast(Event{Type: msg.Subject, Payload: payload})
	})
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Server) unsubscribeEvents() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
}
