package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/rpschat/auth"
	"github.com/wricardo/rpschat/chat"
	"github.com/wricardo/rpschat/protocol"
	"github.com/wricardo/rpschat/rps"
)

// Supervisor owns one websocket connection. It announces the session to the
// router and the engine, turns inbound frames into their calls, writes the
// frames they push back, and tears the session down exactly once.
type Supervisor struct {
	server *Server
	conn   *websocket.Conn
	id     auth.Identity
	logger *slog.Logger

	mailbox protocol.Mailbox
	faults  chan error

	lastSeen atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func newSupervisor(s *Server, conn *websocket.Conn, id auth.Identity) *Supervisor {
	sup := &Supervisor{
		server:  s,
		conn:    conn,
		id:      id,
		logger:  s.logger.With("session", id.ID),
		mailbox: protocol.NewMailbox(s.opts.MailboxSize),
		faults:  make(chan error, 1),
		stop:    make(chan struct{}),
	}
	sup.touch()
	return sup
}

func (s *Supervisor) run(ctx context.Context) {
	s.server.router.Connect(chat.User{ID: s.id.ID, Username: s.id.Username}, s.mailbox)
	s.server.engine.Connect(s.id.ID, s.mailbox)
	s.logger.Info("connection started", "username", s.id.Username)

	go s.writePump()
	s.readPump(ctx)
}

// touch records peer activity
func (s *Supervisor) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Supervisor) idle() time.Duration {
	return time.Since(time.Unix(0, s.lastSeen.Load()))
}

// terminate announces the disconnect and closes the connection. Only the
// first call has any effect.
func (s *Supervisor) terminate(reason string, err error) {
	s.stopOnce.Do(func() {
		if err != nil {
			s.logger.Warn("connection terminated", "reason", reason, "error", err)
		} else {
			s.logger.Info("connection terminated", "reason", reason)
		}

		s.server.router.Disconnect(s.id.ID, s.mailbox)
		s.server.engine.Disconnect(s.id.ID, s.mailbox)

		close(s.stop)
		code := websocket.CloseNormalClosure
		if err != nil {
			code = websocket.ClosePolicyViolation
		}
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		s.conn.Close()
	})
}

// readPump decodes inbound frames until the connection fails
func (s *Supervisor) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		s.touch()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
				// Already terminated elsewhere
				return
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.terminate("read failed", err)
			} else {
				s.terminate("peer closed", nil)
			}
			return
		}
		s.touch()

		if err := s.dispatch(ctx, frame); err != nil {
			s.terminate("bad frame", err)
			return
		}
	}
}

// writePump writes queued frames and runs the heartbeat
func (s *Supervisor) writePump() {
	ticker := time.NewTicker(s.server.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.mailbox:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.terminate("write failed", err)
				return
			}

		case <-ticker.C:
			if idle := s.idle(); idle > s.server.opts.ClientTimeout {
				s.terminate("heartbeat timeout", fmt.Errorf("silent for %s", idle.Round(time.Millisecond)))
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.terminate("ping failed", err)
				return
			}

		case err := <-s.faults:
			s.terminate("engine fault", err)
			return

		case <-s.server.quit:
			s.terminate("server shutting down", nil)
			return

		case <-s.stop:
			return
		}
	}
}

// dispatch routes one inbound frame. A returned error ends the connection.
func (s *Supervisor) dispatch(ctx context.Context, frame []byte) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	switch env.Header {
	case protocol.HeaderChatMessage:
		var msg chat.ChatMessage
		if err := env.Bind(&msg); err != nil {
			return err
		}
		msg.SenderID = s.id.ID
		s.server.router.SubmitMessage(msg)

	case protocol.HeaderJoin:
		var req chat.JoinRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		messages, err := s.server.router.Join(ctx, s.id.ID, req.RoomID)
		if err != nil {
			return err
		}
		if len(messages) > 0 {
			s.push(protocol.HeaderRead, messages)
		}

	case protocol.HeaderRead:
		var messages []chat.ChatMessage
		if err := env.Bind(&messages); err != nil {
			return err
		}
		s.server.router.Acknowledge(messages)

	case protocol.HeaderCreateRoom:
		var req chat.CreateRoomRequest
		if err := env.Bind(&req); err != nil {
			return err
		}
		s.server.router.CreateRoom(s.id.ID, req.Name)

	case protocol.HeaderRPS:
		var req rps.Request
		if err := env.Bind(&req); err != nil {
			return err
		}
		return s.dispatchRPS(ctx, req)

	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownHeader, env.Header)
	}
	return nil
}

func (s *Supervisor) dispatchRPS(ctx context.Context, req rps.Request) error {
	engine := s.server.engine

	if req.Init != nil {
		init := *req.Init
		init.Host = s.id.ID
		state, err := engine.CreateGame(ctx, init)
		if err != nil {
			return err
		}
		s.push(protocol.HeaderRPS, rps.StateFrame{State: state})
		return nil
	}

	if req.Action == nil {
		return fmt.Errorf("%w: rps frame has neither init nor action", protocol.ErrMalformedEnvelope)
	}
	action := *req.Action

	switch action.Action {
	case rps.ActionJoin:
		state, err := engine.JoinGame(ctx, action.GameID, s.id.ID)
		if err != nil {
			return err
		}
		if state != nil {
			s.push(protocol.HeaderRPS, rps.StateFrame{State: *state})
		}
	case rps.ActionChoose:
		if !action.Choice.Valid() {
			return fmt.Errorf("%w: missing choice", protocol.ErrMalformedEnvelope)
		}
		engine.SubmitChoice(action.GameID, s.id.ID, action.Choice, s.faults)
	case rps.ActionFastMode:
		engine.SetFastMode(action.GameID, s.id.ID, action.FastMode, s.faults)
	default:
		return fmt.Errorf("%w: unknown rps action %q", protocol.ErrMalformedEnvelope, action.Action)
	}
	return nil
}

// push queues a frame for this connection only
func (s *Supervisor) push(header string, data any) {
	frame, err := protocol.Encode(header, data)
	if err != nil {
		s.logger.Error("failed to encode frame", "header", header, "error", err)
		return
	}
	if !s.mailbox.Push(frame) {
		s.logger.Warn("dropped frame, mailbox full", "header", header)
	}
}
