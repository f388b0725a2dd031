package rps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/wricardo/rpschat/protocol"
)

const (
	inboxSize = 256

	// DefaultGGScore is the number of round wins that ends a game
	DefaultGGScore = 3
)

// DefaultNames is the display-name pool used when none is configured
var DefaultNames = []string{"Deadly Dispute", "Supreme Battle", "Ultimate Showdown", "Quest for Glory"}

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrEngineStopped = errors.New("engine stopped")
)

// HallOfFame records tournament wins. Calls must not block.
type HallOfFame interface {
	UpsertHallOfFame(userID string)
}

// Config holds engine settings
type Config struct {
	// Names is the pool game names are drawn from
	Names []string
	// DefaultGGScore applies when a game is created without a positive gg score
	DefaultGGScore int
}

// Engine owns every game and the rps delivery handles. All state is
// mutated by the Run goroutine only.
type Engine struct {
	names          []string
	defaultGGScore int
	hof            HallOfFame
	logger         *slog.Logger

	inbox chan command
	done  chan struct{}

	// Owned by the Run goroutine
	handles   map[string]protocol.Handle
	games     map[string]*game
	gameOrder []string
}

type command interface{}

type connectCmd struct {
	session string
	handle  protocol.Handle
}

type disconnectCmd struct {
	session string
	handle  protocol.Handle
}

type createCmd struct {
	init  Init
	reply chan State
}

type joinResult struct {
	state *State
	err   error
}

type joinCmd struct {
	gameID  string
	session string
	reply   chan joinResult
}

type fastModeCmd struct {
	gameID  string
	session string
	flag    bool
	fault   chan<- error
}

type chooseCmd struct {
	gameID  string
	session string
	choice  Choice
	fault   chan<- error
}

type gamesCmd struct {
	reply chan []State
}

// NewEngine creates an engine. hof may be nil.
func NewEngine(cfg Config, hof HallOfFame, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	names := cfg.Names
	if len(names) == 0 {
		names = DefaultNames
	}
	ggScore := cfg.DefaultGGScore
	if ggScore < 1 {
		ggScore = DefaultGGScore
	}
	return &Engine{
		names:          names,
		defaultGGScore: ggScore,
		hof:            hof,
		logger:         logger.With("component", "rps"),
		inbox:          make(chan command, inboxSize),
		done:           make(chan struct{}),
		handles:        make(map[string]protocol.Handle),
		games:          make(map[string]*game),
	}
}

// Run processes commands until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("engine stopping")
			return nil
		case cmd := <-e.inbox:
			e.handle(cmd)
		}
	}
}

func (e *Engine) handle(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		e.handles[c.session] = c.handle
		e.unicast(c.session, GamesFrame{Games: e.snapshot()})
	case disconnectCmd:
		if cur, ok := e.handles[c.session]; ok && cur != c.handle {
			// The session reconnected with another handle
			return
		}
		delete(e.handles, c.session)
	case createCmd:
		c.reply <- e.create(c.init)
	case joinCmd:
		state, err := e.join(c.gameID, c.session)
		c.reply <- joinResult{state: state, err: err}
	case fastModeCmd:
		e.fastMode(c)
	case chooseCmd:
		e.choose(c)
	case gamesCmd:
		c.reply <- e.snapshot()
	default:
		e.logger.Warn("unknown engine command", "type", fmt.Sprintf("%T", cmd))
	}
}

func (e *Engine) send(cmd command) bool {
	select {
	case e.inbox <- cmd:
		return true
	case <-e.done:
		return false
	}
}

// Connect borrows the session's handle and sends it the game list
func (e *Engine) Connect(session string, h protocol.Handle) {
	e.send(connectCmd{session: session, handle: h})
}

// Disconnect drops the session's handle if it is still h. Game membership
// is kept.
func (e *Engine) Disconnect(session string, h protocol.Handle) {
	e.send(disconnectCmd{session: session, handle: h})
}

// CreateGame starts a new game hosted by init.Host
func (e *Engine) CreateGame(ctx context.Context, init Init) (State, error) {
	reply := make(chan State, 1)
	if err := e.request(ctx, createCmd{init: init, reply: reply}); err != nil {
		return State{}, err
	}
	select {
	case state := <-reply:
		return state, nil
	case <-e.done:
		return State{}, ErrEngineStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// JoinGame connects an invited player. It returns nil when the session is
// not invited or already connected.
func (e *Engine) JoinGame(ctx context.Context, gameID, session string) (*State, error) {
	reply := make(chan joinResult, 1)
	if err := e.request(ctx, joinCmd{gameID: gameID, session: session, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.state, res.err
	case <-e.done:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetFastMode toggles fast mode. An unknown game is reported on fault.
func (e *Engine) SetFastMode(gameID, session string, flag bool, fault chan<- error) {
	e.send(fastModeCmd{gameID: gameID, session: session, flag: flag, fault: fault})
}

// SubmitChoice records a throw. An unknown game is reported on fault.
func (e *Engine) SubmitChoice(gameID, session string, c Choice, fault chan<- error) {
	e.send(chooseCmd{gameID: gameID, session: session, choice: c, fault: fault})
}

// Games returns a snapshot of every game in creation order
func (e *Engine) Games(ctx context.Context) ([]State, error) {
	reply := make(chan []State, 1)
	if err := e.request(ctx, gamesCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case games := <-reply:
		return games, nil
	case <-e.done:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) request(ctx context.Context, cmd command) error {
	select {
	case e.inbox <- cmd:
		return nil
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) create(init Init) State {
	if init.GGScore < 1 {
		init.GGScore = e.defaultGGScore
	}
	g := newGame(uuid.NewString(), e.names[rand.IntN(len(e.names))], init)
	e.games[g.id] = g
	e.gameOrder = append(e.gameOrder, g.id)

	state := g.state()
	e.broadcast(StateFrame{State: state})

	e.logger.Info("game created", "game", g.id, "name", g.name, "host", g.host, "players", len(g.players))
	return state
}

func (e *Engine) join(gameID, session string) (*State, error) {
	g, ok := e.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if !g.join(session) {
		return nil, nil
	}
	e.publish(g, Event{Type: EventPlayerConnected, Player: session})

	state := g.state()
	return &state, nil
}

func (e *Engine) fastMode(c fastModeCmd) {
	g, ok := e.games[c.gameID]
	if !ok {
		e.fault(c.fault, c.gameID)
		return
	}
	value := g.setFastMode(c.session, c.flag)
	e.publish(g, Event{Type: EventFastToggled, FastMode: value})
}

func (e *Engine) choose(c chooseCmd) {
	g, ok := e.games[c.gameID]
	if !ok {
		e.fault(c.fault, c.gameID)
		return
	}

	res, accepted := g.choose(c.session, c.choice)
	if !accepted {
		e.logger.Debug("choice ignored", "game", g.id, "session", c.session)
		return
	}
	if res == nil {
		return
	}

	e.publish(g, Event{Type: EventChoices, Choices: res.Choices})
	if res.Winner == "" {
		e.publish(g, Event{Type: EventExclude, Players: res.Excluded})
		return
	}

	e.publish(g, Event{Type: EventWinner, Player: res.Winner})
	if res.GameOver {
		if e.hof != nil {
			e.hof.UpsertHallOfFame(res.Winner)
		}
		e.publish(g, Event{Type: EventGG, GameID: g.id})
		e.logger.Info("game over", "game", g.id, "winner", res.Winner)
	}
}

// fault reports an unknown game to the triggering connection without blocking
func (e *Engine) fault(fault chan<- error, gameID string) {
	e.logger.Warn("unknown game", "game", gameID)
	if fault == nil {
		return
	}
	select {
	case fault <- fmt.Errorf("%w: %s", ErrGameNotFound, gameID):
	default:
	}
}

func (e *Engine) snapshot() []State {
	states := make([]State, 0, len(e.gameOrder))
	for _, id := range e.gameOrder {
		states = append(states, e.games[id].state())
	}
	return states
}

// publish sends an update to every connected player of the game
func (e *Engine) publish(g *game, ev Event) {
	frame, err := protocol.Encode(protocol.HeaderRPS, UpdateFrame{Update: Update{GameID: g.id, Event: ev}})
	if err != nil {
		e.logger.Error("failed to encode update", "game", g.id, "error", err)
		return
	}
	for _, p := range sortedKeys(g.connections) {
		if h, ok := e.handles[p]; ok {
			h.Push(frame)
		}
	}
}

func (e *Engine) unicast(session string, data any) {
	h, ok := e.handles[session]
	if !ok {
		return
	}
	frame, err := protocol.Encode(protocol.HeaderRPS, data)
	if err != nil {
		e.logger.Error("failed to encode frame", "error", err)
		return
	}
	h.Push(frame)
}

func (e *Engine) broadcast(data any) {
	frame, err := protocol.Encode(protocol.HeaderRPS, data)
	if err != nil {
		e.logger.Error("failed to encode frame", "error", err)
		return
	}
	for _, h := range e.handles {
		h.Push(frame)
	}
}
