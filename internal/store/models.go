package store

import "time"

type User struct {
	UID          string    `db:"uid" json:"UID"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ChatTurn is one query/answer exchange. Turns are append-only and never
// mutated after insertion.
type ChatTurn struct {
	ID        string    `db:"id" json:"-"`
	SessionID string    `db:"session_id" json:"-"`
	User      string    `db:"user_query" json:"user"`
	Context   string    `db:"context" json:"context"`
	Chatbot   string    `db:"chatbot" json:"chatbot"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Session groups the chat turns of one conversation. The numeric row ID is
// exposed as a stringified "_id" so clients keep seeing a document-style ID.
type Session struct {
	ID        int64      `db:"id" json:"_id,string"`
	SessionID string     `db:"session_id" json:"session_id"`
	UID       string     `db:"uid" json:"UID"`
	Messages  []ChatTurn `db:"-" json:"messages"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
