package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wricardo/rpschat/auth"
	"github.com/wricardo/rpschat/chat"
	"github.com/wricardo/rpschat/rps"
	"github.com/wricardo/rpschat/store"
)

const (
	defaultHallOfFameLimit = 10
	maxHallOfFameLimit     = 100
)

// ChatService is the read side of the chat router
type ChatService interface {
	Users(ctx context.Context) ([]chat.User, error)
	Rooms(ctx context.Context) ([]chat.PublicRoom, error)
}

// GameService is the read side of the rps engine
type GameService interface {
	Games(ctx context.Context) ([]rps.State, error)
}

// HallOfFame reads the persisted leaderboard
type HallOfFame interface {
	HallOfFame(ctx context.Context, limit int) ([]store.HallOfFameEntry, error)
}

// Authenticator turns a bearer token into an identity
type Authenticator interface {
	Verify(token string) (auth.Identity, error)
}

// WebSocketServer supervises upgraded connections
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, id auth.Identity)
	Connections() int
}

// Deps are the collaborators the API serves. HallOfFame and MCP may be nil.
type Deps struct {
	Chat       ChatService
	Games      GameService
	HallOfFame HallOfFame
	Auth       Authenticator
	WebSocket  WebSocketServer
	MCP        http.Handler
	Logger     *slog.Logger
}

// Server represents the HTTP API server
type Server struct {
	deps    Deps
	logger  *slog.Logger
	router  *mux.Router
	started time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:    deps,
		logger:  logger.With("component", "api"),
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Chat
	api.HandleFunc("/users", s.handleListUsers).Methods("GET")
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	// Tournaments
	api.HandleFunc("/games", s.handleListGames).Methods("GET")
	api.HandleFunc("/games/{id}", s.handleGetGame).Methods("GET")
	api.HandleFunc("/hall-of-fame", s.handleHallOfFame).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// MCP over HTTP
	if s.deps.MCP != nil {
		s.router.Handle("/mcp", s.deps.MCP).Methods("POST")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Chat Handlers

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Chat.Users(r.Context())
	if err != nil {
		s.respondUnavailable(w, err)
		return
	}

	// Optional filter: ?online=true
	if online, _ := strconv.ParseBool(r.URL.Query().Get("online")); online {
		filtered := make([]chat.User, 0, len(users))
		for _, u := range users {
			if u.Connected {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(users),
		"users": users,
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.deps.Chat.Rooms(r.Context())
	if err != nil {
		s.respondUnavailable(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rooms, err := s.deps.Chat.Rooms(r.Context())
	if err != nil {
		s.respondUnavailable(w, err)
		return
	}
	for _, room := range rooms {
		if room.ID == id {
			respondJSON(w, http.StatusOK, room)
			return
		}
	}
	respondError(w, http.StatusNotFound, "room not found")
}

// Tournament Handlers

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.deps.Games.Games(r.Context())
	if err != nil {
		s.respondUnavailable(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(games),
		"games": games,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	games, err := s.deps.Games.Games(r.Context())
	if err != nil {
		s.respondUnavailable(w, err)
		return
	}
	for _, g := range games {
		if g.ID == id {
			respondJSON(w, http.StatusOK, g)
			return
		}
	}
	respondError(w, http.StatusNotFound, rps.ErrGameNotFound.Error())
}

func (s *Server) handleHallOfFame(w http.ResponseWriter, r *http.Request) {
	if s.deps.HallOfFame == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"entries": []store.HallOfFameEntry{}})
		return
	}

	limit := defaultHallOfFameLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHallOfFameLimit)
	}

	entries, err := s.deps.HallOfFame.HallOfFame(r.Context(), limit)
	if err != nil {
		s.logger.Error("hall of fame query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read hall of fame")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}

	id, err := s.deps.Auth.Verify(token)
	if err != nil {
		s.logger.Info("websocket auth rejected", "error", err)
		if errors.Is(err, auth.ErrExpiredToken) {
			respondError(w, http.StatusUnauthorized, "token expired")
			return
		}
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	s.deps.WebSocket.ServeWS(w, r, id)
}

// tokenFromRequest looks in the Authorization cookie, the token query
// parameter and the Authorization header, in that order
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie("Authorization"); err == nil && c.Value != "" {
		return strings.TrimSpace(strings.TrimPrefix(c.Value, "Bearer "))
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connections := 0
	if s.deps.WebSocket != nil {
		connections = s.deps.WebSocket.Connections()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": connections,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) respondUnavailable(w http.ResponseWriter, err error) {
	s.logger.Warn("state unavailable", "error", err)
	respondError(w, http.StatusServiceUnavailable, "server is shutting down")
}
