package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wricardo/rpschat/chat"
)

//go:embed schema.sql
var sqlFiles embed.FS

const (
	// DefaultQueueSize bounds the number of pending writes
	DefaultQueueSize = 1024

	writeTimeout = 5 * time.Second
)

var ErrClosed = errors.New("store closed")

// HallOfFameEntry is one row of the leaderboard
type HallOfFameEntry struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

type job struct {
	name string
	run  func(ctx context.Context, db *sql.DB) error
}

// SQLite is the durable-write relay. Writes are queued and applied by a
// single worker goroutine; a full queue or a failed statement is logged and
// the write is dropped.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

// Open opens (creating if needed) the database at path, applies the schema
// and starts the writer
func Open(path string, queueSize int, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	schema, err := sqlFiles.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error reading schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger.With("component", "store"),
		queue:  make(chan job, queueSize),
		done:   make(chan struct{}),
	}
	go s.worker()

	s.logger.Info("database opened", "path", path)
	return s, nil
}

func (s *SQLite) worker() {
	defer close(s.done)

	for j := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := j.run(ctx, s.db); err != nil {
			s.logger.Error("durable write failed", "op", j.name, "error", err)
		}
		cancel()
	}
}

// enqueue hands a job to the worker without blocking
func (s *SQLite) enqueue(j job) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("write after close dropped", "op", j.name)
		return
	}
	select {
	case s.queue <- j:
	default:
		s.logger.Warn("write queue full, dropping", "op", j.name)
	}
}

// StoreMessage persists a chat message, addressed to a room or a user
func (s *SQLite) StoreMessage(msg chat.ChatMessage, isRoom bool) {
	var receiverUser, receiverRoom sql.NullString
	if isRoom {
		receiverRoom = sql.NullString{String: msg.ReceiverID, Valid: true}
	} else {
		receiverUser = sql.NullString{String: msg.ReceiverID, Valid: true}
	}

	s.enqueue(job{name: "store_message", run: func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO messages (id, sender_id, receiver_user, receiver_room, content, read)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.SenderID, receiverUser, receiverRoom, msg.Content, msg.Read)
		return err
	}})
}

// StoreRoom persists a new room and its admin's membership
func (s *SQLite) StoreRoom(room chat.PublicRoom, adminID string) {
	s.enqueue(job{name: "store_room", run: func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (id, name, admin) VALUES (?, ?, ?)`,
			room.ID, room.Name, adminID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_connections (room_id, user_id) VALUES (?, ?)`,
			room.ID, adminID); err != nil {
			return err
		}
		return tx.Commit()
	}})
}

// StoreRoomMembership records that a user joined a room
func (s *SQLite) StoreRoomMembership(roomID, userID string) {
	s.enqueue(job{name: "store_room_membership", run: func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_connections (room_id, user_id) VALUES (?, ?)`,
			roomID, userID)
		return err
	}})
}

// UpsertHallOfFame adds one tournament win for the user
func (s *SQLite) UpsertHallOfFame(userID string) {
	s.enqueue(job{name: "upsert_hall_of_fame", run: func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO hall_of_fame (user_id, score) VALUES (?, 1)
			 ON CONFLICT (user_id) DO UPDATE SET score = score + 1`,
			userID)
		return err
	}})
}

// HallOfFame returns the top entries by score
func (s *SQLite) HallOfFame(ctx context.Context, limit int) ([]HallOfFameEntry, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, score FROM hall_of_fame ORDER BY score DESC, user_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying hall of fame: %w", err)
	}
	defer rows.Close()

	entries := []HallOfFameEntry{}
	for rows.Next() {
		var e HallOfFameEntry
		if err := rows.Scan(&e.UserID, &e.Score); err != nil {
			return nil, fmt.Errorf("error scanning hall of fame: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sync blocks until every write queued before the call has been applied
func (s *SQLite) Sync(ctx context.Context) error {
	flushed := make(chan struct{})
	j := job{name: "sync", run: func(context.Context, *sql.DB) error {
		close(flushed)
		return nil
	}}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.queue <- j:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and closes the database
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}
