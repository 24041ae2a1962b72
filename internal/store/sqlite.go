package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrSessionNotFound is returned for lookups and appends against a
// session_id that does not exist.
var ErrSessionNotFound = errors.New("session not found")

type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// grow beyond one.
	if strings.Contains(dataSourceName, ":memory:") || strings.Contains(dataSourceName, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        uid TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        email TEXT NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS sessions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT UNIQUE NOT NULL,
        uid TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        user_query TEXT NOT NULL,
        context TEXT NOT NULL,
        chatbot TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES sessions (session_id)
    );

    CREATE INDEX IF NOT EXISTS idx_sessions_uid ON sessions(uid);
    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(name, email, passwordHash string) (*User, error) {
	user := &User{
		UID:          uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.Exec(
		"INSERT INTO users (uid, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.UID, user.Name, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetUsersByName returns every user registered under that name, earliest
// first. Names are not unique, so login has to consider all of them.
func (s *SQLiteStore) GetUsersByName(name string) ([]User, error) {
	var users []User
	err := s.db.Select(&users,
		"SELECT uid, name, email, password_hash, created_at FROM users WHERE name = ? ORDER BY rowid ASC",
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return users, nil
}

// Session methods

func (s *SQLiteStore) CreateSession(uid string) (*Session, error) {
	session := &Session{
		SessionID: uuid.NewString(),
		UID:       uid,
		Messages:  []ChatTurn{},
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.Exec(
		"INSERT INTO sessions (session_id, uid, created_at) VALUES (?, ?, ?)",
		session.SessionID, session.UID, session.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	session.ID, _ = res.LastInsertId()
	return session, nil
}

// DeleteEmptySessions removes the user's sessions that have no messages and
// returns how many were deleted.
func (s *SQLiteStore) DeleteEmptySessions(uid string) (int64, error) {
	res, err := s.db.Exec(`
        DELETE FROM sessions
        WHERE uid = ?
          AND NOT EXISTS (SELECT 1 FROM messages WHERE messages.session_id = sessions.session_id)`,
		uid,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty sessions: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*Session, error) {
	var session Session
	err := s.db.Get(&session,
		"SELECT id, session_id, uid, created_at FROM sessions WHERE session_id = ?",
		sessionID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := s.loadMessages(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionsForUser returns the user's sessions, most recently created
// first, with their messages loaded.
func (s *SQLiteStore) GetSessionsForUser(uid string) ([]Session, error) {
	var sessions []Session
	err := s.db.Select(&sessions,
		"SELECT id, session_id, uid, created_at FROM sessions WHERE uid = ? ORDER BY id DESC",
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	for i := range sessions {
		if err := s.loadMessages(&sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// loadMessages fills a session's turns in insertion order. rowid ordering is
// used instead of timestamps so same-instant appends keep their call order.
func (s *SQLiteStore) loadMessages(session *Session) error {
	session.Messages = []ChatTurn{}
	err := s.db.Select(&session.Messages,
		"SELECT id, session_id, user_query, context, chatbot, timestamp FROM messages WHERE session_id = ? ORDER BY rowid ASC",
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to query messages: %w", err)
	}
	return nil
}

// AppendTurn adds one turn to an existing session. Appending to an unknown
// session_id fails with ErrSessionNotFound rather than silently doing
// nothing.
func (s *SQLiteStore) AppendTurn(sessionID string, turn *ChatTurn) error {
	var exists int
	err := s.db.Get(&exists, "SELECT 1 FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to verify session: %w", err)
	}

	turn.ID = uuid.NewString()
	turn.SessionID = sessionID
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	_, err = s.db.Exec(
		"INSERT INTO messages (id, session_id, user_query, context, chatbot, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		turn.ID, turn.SessionID, turn.User, turn.Context, turn.Chatbot, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}
