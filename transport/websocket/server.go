package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/rpschat/auth"
	"github.com/wricardo/rpschat/chat"
	"github.com/wricardo/rpschat/protocol"
	"github.com/wricardo/rpschat/rps"
)

const (
	// Subprotocol is negotiated with browsers that request it
	Subprotocol = "ezSocket"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	defaultHeartbeatInterval = 5 * time.Second
	defaultClientTimeout     = 10 * time.Second
	defaultMailboxSize       = 256
)

// Router is the part of the chat router a connection drives
type Router interface {
	Connect(user chat.User, h protocol.Handle)
	Disconnect(session string, h protocol.Handle)
	Join(ctx context.Context, session, target string) ([]chat.ChatMessage, error)
	SubmitMessage(msg chat.ChatMessage)
	CreateRoom(sender, name string)
	Acknowledge(messages []chat.ChatMessage)
}

// Engine is the part of the rps engine a connection drives
type Engine interface {
	Connect(session string, h protocol.Handle)
	Disconnect(session string, h protocol.Handle)
	CreateGame(ctx context.Context, init rps.Init) (rps.State, error)
	JoinGame(ctx context.Context, gameID, session string) (*rps.State, error)
	SetFastMode(gameID, session string, flag bool, fault chan<- error)
	SubmitChoice(gameID, session string, c rps.Choice, fault chan<- error)
}

// Options tunes connection supervision
type Options struct {
	// HeartbeatInterval is how often the peer is pinged and checked
	HeartbeatInterval time.Duration
	// ClientTimeout is how long a peer may stay silent
	ClientTimeout time.Duration
	// MailboxSize bounds the outbound frames queued per connection
	MailboxSize int
	// AllowedOrigins restricts browser origins; empty allows any
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server upgrades HTTP requests and supervises the resulting connections
type Server struct {
	router   Router
	engine   Engine
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	active    atomic.Int64
	quit      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a websocket server
func NewServer(router Router, engine Engine, opts Options) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = defaultClientTimeout
	}
	if opts.MailboxSize < 1 {
		opts.MailboxSize = defaultMailboxSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: router,
		engine: engine,
		opts:   opts,
		logger: logger.With("component", "websocket"),
		quit:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{Subprotocol},
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and supervises the connection for the
// authenticated identity. It returns when the connection is gone.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.active.Add(1)
	defer s.active.Add(-1)

	sup := newSupervisor(s, conn, id)
	sup.run(r.Context())
}

// Connections returns the number of live connections
func (s *Server) Connections() int {
	return int(s.active.Load())
}

// Close terminates every live connection
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}
