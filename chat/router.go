package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wricardo/rpschat/protocol"
)

const inboxSize = 256

var ErrRouterStopped = errors.New("router stopped")

// Router owns presence, conversation focus, the room roster and the message
// store. Every mutation is applied by the single Run goroutine in the order
// commands arrive.
type Router struct {
	archive Archive
	logger  *slog.Logger

	inbox chan command
	done  chan struct{}

	// Owned by the Run goroutine
	users     map[string]*User
	userOrder []string
	handles   map[string]protocol.Handle
	focus     map[string]string
	rooms     map[string]*PublicRoom
	roomOrder []string
	messages  *MessageStore
}

type command interface{}

type connectCmd struct {
	user   User
	handle protocol.Handle
}

type disconnectCmd struct {
	session string
	handle  protocol.Handle
}

type joinCmd struct {
	session string
	target  string
	reply   chan []ChatMessage
}

type submitCmd struct {
	msg ChatMessage
}

type createRoomCmd struct {
	sender string
	name   string
}

type acknowledgeCmd struct {
	messages []ChatMessage
}

type usersCmd struct {
	reply chan []User
}

type roomsCmd struct {
	reply chan []PublicRoom
}

// NewRouter creates a router. archive may be nil when nothing is persisted.
func NewRouter(archive Archive, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		archive:  archive,
		logger:   logger.With("component", "router"),
		inbox:    make(chan command, inboxSize),
		done:     make(chan struct{}),
		users:    make(map[string]*User),
		handles:  make(map[string]protocol.Handle),
		focus:    make(map[string]string),
		rooms:    make(map[string]*PublicRoom),
		messages: NewMessageStore(),
	}
}

// Run processes commands until ctx is cancelled
func (r *Router) Run(ctx context.Context) error {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("router stopping")
			return nil
		case cmd := <-r.inbox:
			r.handle(cmd)
		}
	}
}

func (r *Router) handle(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		r.connect(c.user, c.handle)
	case disconnectCmd:
		r.disconnect(c.session, c.handle)
	case joinCmd:
		c.reply <- r.join(c.session, c.target)
	case submitCmd:
		r.submit(c.msg)
	case createRoomCmd:
		r.createRoom(c.sender, c.name)
	case acknowledgeCmd:
		r.acknowledge(c.messages)
	case usersCmd:
		c.reply <- r.roster()
	case roomsCmd:
		c.reply <- r.roomSnapshot()
	default:
		r.logger.Warn("unknown router command", "type", fmt.Sprintf("%T", cmd))
	}
}

// send enqueues a fire-and-forget command. It reports false once the router
// has stopped.
func (r *Router) send(cmd command) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// Connect registers the user as online and borrows its delivery handle
func (r *Router) Connect(user User, h protocol.Handle) {
	r.send(connectCmd{user: user, handle: h})
}

// Disconnect releases h. It is ignored when the session has since
// connected again with another handle.
func (r *Router) Disconnect(session string, h protocol.Handle) {
	r.send(disconnectCmd{session: session, handle: h})
}

// Join points the session at target and returns the conversation with it.
// For a room that is the full room log; for a user it is the private
// exchange between the two.
func (r *Router) Join(ctx context.Context, session, target string) ([]ChatMessage, error) {
	reply := make(chan []ChatMessage, 1)
	select {
	case r.inbox <- joinCmd{session: session, target: target, reply: reply}:
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case messages := <-reply:
		return messages, nil
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitMessage stores and relays a chat message
func (r *Router) SubmitMessage(msg ChatMessage) {
	r.send(submitCmd{msg: msg})
}

// CreateRoom creates a room with sender as its only member
func (r *Router) CreateRoom(sender, name string) {
	r.send(createRoomCmd{sender: sender, name: name})
}

// Acknowledge marks the listed messages read and tells their senders
func (r *Router) Acknowledge(messages []ChatMessage) {
	r.send(acknowledgeCmd{messages: messages})
}

// Users returns the roster in first-connect order
func (r *Router) Users(ctx context.Context) ([]User, error) {
	reply := make(chan []User, 1)
	select {
	case r.inbox <- usersCmd{reply: reply}:
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case users := <-reply:
		return users, nil
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Rooms returns every room with its members and messages
func (r *Router) Rooms(ctx context.Context) ([]PublicRoom, error) {
	reply := make(chan []PublicRoom, 1)
	select {
	case r.inbox <- roomsCmd{reply: reply}:
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rooms := <-reply:
		return rooms, nil
	case <-r.done:
		return nil, ErrRouterStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Router) connect(user User, h protocol.Handle) {
	user.Connected = true
	if _, ok := r.users[user.ID]; !ok {
		r.userOrder = append(r.userOrder, user.ID)
	}
	r.users[user.ID] = &user

	// The new handle is registered after the broadcast
	r.broadcast(protocol.HeaderUserConnected, user)

	r.handles[user.ID] = h
	if _, ok := r.focus[user.ID]; !ok {
		r.focus[user.ID] = user.ID
	}

	r.unicast(user.ID, protocol.HeaderSession, user.ID)
	r.unicast(user.ID, protocol.HeaderUsers, r.roster())
	if len(r.rooms) > 0 {
		r.unicast(user.ID, protocol.HeaderRoom, roomList{Rooms: r.roomSnapshot()})
	}

	r.logger.Info("user connected", "session", user.ID, "username", user.Username)
}

func (r *Router) disconnect(session string, h protocol.Handle) {
	if cur, ok := r.handles[session]; ok && cur != h {
		r.logger.Debug("stale disconnect ignored", "session", session)
		return
	}

	delete(r.handles, session)
	delete(r.focus, session)

	if user, ok := r.users[session]; ok {
		user.Connected = false
		r.broadcast(protocol.HeaderUserDisconnected, session)
	}

	// Drop focus entries owned by sessions that are gone
	for owner := range r.focus {
		if _, live := r.handles[owner]; !live {
			delete(r.focus, owner)
		}
	}

	r.logger.Info("user disconnected", "session", session)
}

func (r *Router) join(session, target string) []ChatMessage {
	r.focus[session] = target

	if room, ok := r.rooms[target]; ok {
		if !room.HasUser(session) {
			room.Users = append(room.Users, session)
			r.broadcast(protocol.HeaderRoom, roomJoined{Joined: [2]string{session, target}})
			if r.archive != nil {
				r.archive.StoreRoomMembership(target, session)
			}
		}
		return r.messages.RoomMessages(target)
	}

	all, newlyRead := r.messages.Conversation(session, target)
	if session != target && len(newlyRead) > 0 {
		// The focus now targets the other participant
		r.unicast(r.focus[session], protocol.HeaderRead, newlyRead)
	}
	return all
}

func (r *Router) submit(msg ChatMessage) {
	if msg.ID == "" {
		msg.ID = newID()
	}
	msg.Read = false
	r.messages.Append(msg)

	if room, ok := r.rooms[msg.ReceiverID]; ok {
		r.messages.AppendRoom(room.ID, msg)
		for _, member := range room.Users {
			if r.focus[member] == room.ID {
				r.unicast(member, protocol.HeaderChatMessage, msg)
			}
		}
		if r.archive != nil {
			r.archive.StoreMessage(msg, true)
		}
		return
	}

	if r.archive != nil {
		r.archive.StoreMessage(msg, false)
	}
	if msg.SenderID != msg.ReceiverID {
		if target, ok := r.focus[msg.SenderID]; ok {
			r.unicast(target, protocol.HeaderChatMessage, msg)
		}
	}
	r.unicast(msg.SenderID, protocol.HeaderChatMessage, msg)
}

func (r *Router) createRoom(sender, name string) {
	room := &PublicRoom{
		ID:       newID(),
		Name:     name,
		Users:    []string{sender},
		Messages: []ChatMessage{},
	}
	r.rooms[room.ID] = room
	r.roomOrder = append(r.roomOrder, room.ID)

	if r.archive != nil {
		r.archive.StoreRoom(*room, sender)
	}
	r.broadcast(protocol.HeaderRoom, roomCreated{Room: r.snapshotRoom(room)})

	r.logger.Info("room created", "room", room.ID, "name", name, "admin", sender)
}

func (r *Router) acknowledge(messages []ChatMessage) {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}

	updated := r.messages.MarkRead(ids)

	// One read frame per distinct original sender, in first-seen order
	bySender := make(map[string][]ChatMessage)
	var senders []string
	for _, msg := range updated {
		if _, ok := bySender[msg.SenderID]; !ok {
			senders = append(senders, msg.SenderID)
		}
		bySender[msg.SenderID] = append(bySender[msg.SenderID], msg)
	}
	for _, sender := range senders {
		r.unicast(sender, protocol.HeaderRead, bySender[sender])
	}
}

func (r *Router) roster() []User {
	users := make([]User, 0, len(r.userOrder))
	for _, id := range r.userOrder {
		users = append(users, *r.users[id])
	}
	return users
}

func (r *Router) roomSnapshot() []PublicRoom {
	rooms := make([]PublicRoom, 0, len(r.roomOrder))
	for _, id := range r.roomOrder {
		rooms = append(rooms, r.snapshotRoom(r.rooms[id]))
	}
	return rooms
}

func (r *Router) snapshotRoom(room *PublicRoom) PublicRoom {
	users := make([]string, len(room.Users))
	copy(users, room.Users)
	return PublicRoom{
		ID:       room.ID,
		Name:     room.Name,
		Users:    users,
		Messages: r.messages.RoomMessages(room.ID),
	}
}

// unicast pushes one frame to a single session. Unknown or offline sessions
// are ignored.
func (r *Router) unicast(session, header string, data any) {
	h, ok := r.handles[session]
	if !ok {
		return
	}
	frame, err := protocol.Encode(header, data)
	if err != nil {
		r.logger.Error("failed to encode frame", "header", header, "error", err)
		return
	}
	if !h.Push(frame) {
		r.logger.Warn("dropped frame for slow session", "session", session, "header", header)
	}
}

// broadcast pushes one frame to every live handle
func (r *Router) broadcast(header string, data any) {
	frame, err := protocol.Encode(header, data)
	if err != nil {
		r.logger.Error("failed to encode frame", "header", header, "error", err)
		return
	}
	for session, h := range r.handles {
		if !h.Push(frame) {
			r.logger.Warn("dropped frame for slow session", "session", session, "header", header)
		}
	}
}

func newID() string {
	return uuid.NewString()
}
