package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/rpschat/chat"
)

func openTestDB(t *testing.T, queueSize int) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "rpschat.sqlite"), queueSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, s *SQLite, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestStoreMessages(t *testing.T) {
	s := openTestDB(t, 0)
	ctx := context.Background()

	s.StoreMessage(chat.ChatMessage{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi"}, false)
	s.StoreMessage(chat.ChatMessage{ID: "m2", SenderID: "a", ReceiverID: "room", Content: "all"}, true)
	// Duplicate id fails and is dropped without affecting later writes
	s.StoreMessage(chat.ChatMessage{ID: "m1", SenderID: "a", ReceiverID: "b"}, false)
	s.StoreMessage(chat.ChatMessage{ID: "m3", SenderID: "b", ReceiverID: "a"}, false)
	require.NoError(t, s.Sync(ctx))

	assert.Equal(t, 3, countRows(t, s, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM messages WHERE receiver_room = ?`, "room"))
	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM messages WHERE receiver_user = ? AND receiver_room IS NULL`, "b"))
}

func TestStoreRoomAndMembership(t *testing.T) {
	s := openTestDB(t, 0)

	s.StoreRoom(chat.PublicRoom{ID: "r1", Name: "lobby"}, "a")
	s.StoreRoomMembership("r1", "b")
	s.StoreRoomMembership("r1", "b")
	require.NoError(t, s.Sync(context.Background()))

	assert.Equal(t, 1, countRows(t, s, `SELECT COUNT(*) FROM rooms WHERE admin = ?`, "a"))
	assert.Equal(t, 2, countRows(t, s, `SELECT COUNT(*) FROM room_connections WHERE room_id = ?`, "r1"))
}

func TestHallOfFameUpsert(t *testing.T) {
	s := openTestDB(t, 0)
	ctx := context.Background()

	s.UpsertHallOfFame("a")
	s.UpsertHallOfFame("b")
	s.UpsertHallOfFame("a")
	require.NoError(t, s.Sync(ctx))

	entries, err := s.HallOfFame(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []HallOfFameEntry{{UserID: "a", Score: 2}, {UserID: "b", Score: 1}}, entries)

	top, err := s.HallOfFame(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestHallOfFameEmpty(t *testing.T) {
	s := openTestDB(t, 0)
	entries, err := s.HallOfFame(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestCloseDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpschat.sqlite")
	s, err := Open(path, 0, nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		s.UpsertHallOfFame("a")
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Writes after close are dropped silently
	s.UpsertHallOfFame("a")
	assert.ErrorIs(t, s.Sync(context.Background()), ErrClosed)

	reopened, err := Open(path, 0, nil)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.HallOfFame(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 20, entries[0].Score)
}
