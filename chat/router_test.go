package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/rpschat/protocol"
)

// recorder is a Handle that keeps every frame pushed to it
type recorder struct {
	mu     sync.Mutex
	frames []protocol.Envelope
}

func (r *recorder) Push(frame []byte) bool {
	env, err := protocol.Decode(frame)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, env)
	return true
}

func (r *recorder) byHeader(header string) []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Envelope
	for _, f := range r.frames {
		if f.Header == header {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) messages(t *testing.T, header string) [][]ChatMessage {
	t.Helper()
	var out [][]ChatMessage
	for _, env := range r.byHeader(header) {
		var batch []ChatMessage
		if header == protocol.HeaderChatMessage {
			var msg ChatMessage
			require.NoError(t, json.Unmarshal(env.Data, &msg))
			batch = []ChatMessage{msg}
		} else {
			require.NoError(t, json.Unmarshal(env.Data, &batch))
		}
		out = append(out, batch)
	}
	return out
}

type archiveCall struct {
	kind   string
	id     string
	userID string
	isRoom bool
}

type fakeArchive struct {
	mu    sync.Mutex
	calls []archiveCall
}

func (a *fakeArchive) StoreMessage(msg ChatMessage, isRoom bool) {
	a.record(archiveCall{kind: "message", id: msg.ID, userID: msg.SenderID, isRoom: isRoom})
}

func (a *fakeArchive) StoreRoom(room PublicRoom, adminID string) {
	a.record(archiveCall{kind: "room", id: room.ID, userID: adminID})
}

func (a *fakeArchive) StoreRoomMembership(roomID, userID string) {
	a.record(archiveCall{kind: "membership", id: roomID, userID: userID})
}

func (a *fakeArchive) record(c archiveCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

func (a *fakeArchive) count(kind string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func startRouter(t *testing.T) (*Router, *fakeArchive) {
	t.Helper()
	archive := &fakeArchive{}
	router := NewRouter(archive, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go router.Run(ctx)
	t.Cleanup(cancel)
	return router, archive
}

// settle waits until every command sent so far has been applied
func settle(t *testing.T, r *Router) []User {
	t.Helper()
	users, err := r.Users(context.Background())
	require.NoError(t, err)
	return users
}

func connect(r *Router, ids ...string) map[string]*recorder {
	handles := make(map[string]*recorder, len(ids))
	for _, id := range ids {
		h := &recorder{}
		handles[id] = h
		r.Connect(User{ID: id, Username: "user-" + id}, h)
	}
	return handles
}

func TestConnectUnicastsSessionAndRoster(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "u1", "u2")
	users := settle(t, r)

	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.True(t, users[0].Connected)

	session := h["u2"].byHeader(protocol.HeaderSession)
	require.Len(t, session, 1)
	assert.JSONEq(t, `"u2"`, string(session[0].Data))

	// u1 hears about u2, u2 does not hear about itself
	assert.Len(t, h["u1"].byHeader(protocol.HeaderUserConnected), 1)
	assert.Empty(t, h["u2"].byHeader(protocol.HeaderUserConnected))

	// No rooms exist yet
	assert.Empty(t, h["u1"].byHeader(protocol.HeaderRoom))
}

func TestConnectIsIdempotent(t *testing.T) {
	r, _ := startRouter(t)
	connect(r, "u1")
	connect(r, "u1")
	users := settle(t, r)

	require.Len(t, users, 1)
	assert.True(t, users[0].Connected)
}

func TestDisconnectMarksUserOffline(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "a", "b")
	r.Disconnect("b", h["b"])
	users := settle(t, r)

	require.Len(t, users, 2)
	assert.False(t, users[1].Connected)

	gone := h["a"].byHeader(protocol.HeaderUserDisconnected)
	require.Len(t, gone, 1)
	assert.JSONEq(t, `"b"`, string(gone[0].Data))

	// Messages to an offline user are stored, not delivered
	r.SubmitMessage(ChatMessage{SenderID: "a", ReceiverID: "b", Content: "still there?"})
	r.Disconnect("unknown", nil)
	settle(t, r)
	assert.Len(t, h["b"].byHeader(protocol.HeaderChatMessage), 0)
}

func TestStaleDisconnectIsIgnored(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "a", "b")

	// a opens a second connection, then the first one goes away
	second := &recorder{}
	r.Connect(User{ID: "a", Username: "user-a"}, second)
	r.Disconnect("a", h["a"])

	users := settle(t, r)
	require.Len(t, users, 2)
	assert.True(t, users[0].Connected)
	assert.Len(t, h["b"].byHeader(protocol.HeaderUserDisconnected), 0)

	_, err := r.Join(context.Background(), "b", "a")
	require.NoError(t, err)
	r.SubmitMessage(ChatMessage{SenderID: "b", ReceiverID: "a", Content: "still there?"})
	settle(t, r)
	assert.Len(t, second.byHeader(protocol.HeaderChatMessage), 1)
}

func TestDisconnectKeepsFocusOnDepartedPeer(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "b", "c")

	_, err := r.Join(context.Background(), "b", "c")
	require.NoError(t, err)
	r.Disconnect("c", h["c"])

	back := &recorder{}
	r.Connect(User{ID: "c", Username: "user-c"}, back)
	r.SubmitMessage(ChatMessage{SenderID: "b", ReceiverID: "c", Content: "welcome back"})
	settle(t, r)

	// b still focuses c, so the relay reaches c's new connection
	assert.Len(t, back.byHeader(protocol.HeaderChatMessage), 1)
}

func TestPrivateMessageReadBeforeJoin(t *testing.T) {
	r, archive := startRouter(t)
	h := connect(r, "u1", "u2")

	r.SubmitMessage(ChatMessage{SenderID: "u1", ReceiverID: "u2", Content: "hello", Read: true})

	// u1 looking at its own conversation does not mark its sent message read
	history, err := r.Join(context.Background(), "u1", "u2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Read)
	assert.NotEmpty(t, history[0].ID)
	assert.Empty(t, h["u2"].byHeader(protocol.HeaderRead))

	history, err = r.Join(context.Background(), "u2", "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)

	// Returned list and pushed read frame are independent effects
	settle(t, r)
	pushed := h["u1"].messages(t, protocol.HeaderRead)
	require.Len(t, pushed, 1)
	require.Len(t, pushed[0], 1)
	assert.Equal(t, history[0].ID, pushed[0][0].ID)
	assert.True(t, pushed[0][0].Read)

	assert.Equal(t, 1, archive.count("message"))
}

func TestJoinSelfDoesNotPushRead(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "me")
	r.SubmitMessage(ChatMessage{ID: "n1", SenderID: "me", ReceiverID: "me", Content: "note"})

	history, err := r.Join(context.Background(), "me", "me")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Read)

	settle(t, r)
	assert.Empty(t, h["me"].byHeader(protocol.HeaderRead))
	// Self message is only echoed to the sender once
	assert.Len(t, h["me"].byHeader(protocol.HeaderChatMessage), 1)
}

func TestFocusFollowsLastJoin(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "a", "b", "c")
	ctx := context.Background()

	_, err := r.Join(ctx, "a", "b")
	require.NoError(t, err)
	_, err = r.Join(ctx, "a", "c")
	require.NoError(t, err)

	// Relay follows the sender's focus, not the receiver field
	r.SubmitMessage(ChatMessage{SenderID: "a", ReceiverID: "c", Content: "to c"})
	settle(t, r)

	assert.Len(t, h["c"].byHeader(protocol.HeaderChatMessage), 1)
	assert.Empty(t, h["b"].byHeader(protocol.HeaderChatMessage))
	assert.Len(t, h["a"].byHeader(protocol.HeaderChatMessage), 1)
}

func TestRoomLifecycle(t *testing.T) {
	r, archive := startRouter(t)
	h := connect(r, "a", "b", "c")
	ctx := context.Background()

	r.CreateRoom("a", "lobby")
	rooms, err := r.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	room := rooms[0]
	assert.Equal(t, "lobby", room.Name)
	assert.Equal(t, []string{"a"}, room.Users)

	for _, id := range []string{"a", "b", "c"} {
		assert.Len(t, h[id].byHeader(protocol.HeaderRoom), 1, id)
	}

	// b joins twice, membership is written once
	_, err = r.Join(ctx, "b", room.ID)
	require.NoError(t, err)
	_, err = r.Join(ctx, "b", room.ID)
	require.NoError(t, err)
	_, err = r.Join(ctx, "a", room.ID)
	require.NoError(t, err)

	r.SubmitMessage(ChatMessage{SenderID: "a", ReceiverID: room.ID, Content: "welcome"})
	r.SubmitMessage(ChatMessage{SenderID: "b", ReceiverID: room.ID, Content: "thanks"})
	settle(t, r)

	assert.Equal(t, 1, archive.count("room"))
	assert.Equal(t, 1, archive.count("membership"))
	assert.Equal(t, 2, archive.count("message"))

	// Both members focused on the room see both messages, the outsider none
	assert.Len(t, h["a"].byHeader(protocol.HeaderChatMessage), 2)
	assert.Len(t, h["b"].byHeader(protocol.HeaderChatMessage), 2)
	assert.Empty(t, h["c"].byHeader(protocol.HeaderChatMessage))

	// Room history is returned unfiltered by sender
	history, err := r.Join(ctx, "c", room.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "welcome", history[0].Content)
	assert.Equal(t, "thanks", history[1].Content)

	rooms, err = r.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rooms[0].Users)

	// A late connection receives the room roster
	late := connect(r, "d")
	settle(t, r)
	assert.Len(t, late["d"].byHeader(protocol.HeaderRoom), 1)
}

func TestAcknowledgeNotifiesEachSender(t *testing.T) {
	r, _ := startRouter(t)
	h := connect(r, "a", "b", "c")

	r.SubmitMessage(ChatMessage{ID: "m1", SenderID: "a", ReceiverID: "b"})
	r.SubmitMessage(ChatMessage{ID: "m2", SenderID: "a", ReceiverID: "b"})
	r.SubmitMessage(ChatMessage{ID: "m3", SenderID: "c", ReceiverID: "b"})
	r.Acknowledge([]ChatMessage{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}, {ID: "nope"}})
	settle(t, r)

	fromA := h["a"].messages(t, protocol.HeaderRead)
	require.Len(t, fromA, 1)
	assert.Len(t, fromA[0], 2)

	fromC := h["c"].messages(t, protocol.HeaderRead)
	require.Len(t, fromC, 1)
	assert.Len(t, fromC[0], 1)
	assert.True(t, fromC[0][0].Read)
}

func TestStoppedRouter(t *testing.T) {
	router := NewRouter(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- router.Run(ctx) }()

	cancel()
	require.NoError(t, <-stopped)

	_, err := router.Join(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrRouterStopped)
	_, err = router.Users(context.Background())
	assert.ErrorIs(t, err, ErrRouterStopped)

	// Fire-and-forget calls return instead of blocking
	router.SubmitMessage(ChatMessage{SenderID: "a", ReceiverID: "b"})
}
