package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/auth"
	"github.com/transitassist/chatbot/internal/store"
)

// ErrInvalidCredentials is returned for any login mismatch. It is
// deliberately generic: callers cannot tell an unknown name from a wrong
// password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrValidation marks a missing required field; wrap it with the field name.
var ErrValidation = errors.New("validation failed")

// ChatService orchestrates registration, login, session lifecycle and the
// retrieve → generate → persist query pipeline.
type ChatService struct {
	dbStore   *store.SQLiteStore
	retriever *Retriever
	answerer  *Answerer
	tokens    *auth.TokenManager
	logger    *zap.Logger
}

func NewChatService(db *store.SQLiteStore, retriever *Retriever, answerer *Answerer, tokens *auth.TokenManager, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:   db,
		retriever: retriever,
		answerer:  answerer,
		tokens:    tokens,
		logger:    logger,
	}
}

// Register creates a user with a bcrypt-hashed password and returns the new
// UID. Duplicate names and emails are allowed.
func (s *ChatService) Register(ctx context.Context, name, email, password string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	case email == "":
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	case password == "":
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.dbStore.CreateUser(name, email, hash)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("uid", user.UID))
	return user.UID, nil
}

// Login checks name and password and returns the UID plus a signed token.
func (s *ChatService) Login(ctx context.Context, name, password string) (uid, token string, err error) {
	users, err := s.dbStore.GetUsersByName(name)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up user: %w", err)
	}

	// Names are not unique; the login pair matches whichever account the
	// password belongs to.
	var user *store.User
	for i := range users {
		if auth.CheckPasswordHash(password, users[i].PasswordHash) {
			user = &users[i]
			break
		}
	}
	if user == nil {
		return "", "", ErrInvalidCredentials
	}

	token, err = s.tokens.Generate(user.UID)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	return user.UID, token, nil
}

// StartSession garbage-collects the user's abandoned empty sessions, then
// creates a fresh one and returns its session_id.
func (s *ChatService) StartSession(ctx context.Context, uid string) (string, error) {
	deleted, err := s.dbStore.DeleteEmptySessions(uid)
	if err != nil {
		s.logger.Warn("failed to delete empty sessions", zap.String("uid", uid), zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("deleted empty sessions before starting a new one",
			zap.String("uid", uid),
			zap.Int64("deleted", deleted),
		)
	}

	session, err := s.dbStore.CreateSession(uid)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return session.SessionID, nil
}

// Query runs the full pipeline for one turn: verify the session, retrieve
// context, generate the answer, persist the turn, return the answer. A
// crash between generation and persistence loses the turn; there is no
// transactional guarantee across the pipeline.
func (s *ChatService) Query(ctx context.Context, sessionID, query string) (string, error) {
	// Fail before spending a generation call on an unknown session.
	if _, err := s.dbStore.GetSession(sessionID); err != nil {
		return "", err
	}

	contextText, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}

	answer, err := s.answerer.Answer(ctx, contextText, query)
	if err != nil {
		return "", err
	}

	turn := store.ChatTurn{
		User:      query,
		Context:   contextText,
		Chatbot:   answer,
		Timestamp: time.Now().UTC(),
	}
	if err := s.dbStore.AppendTurn(sessionID, &turn); err != nil {
		return "", err
	}

	s.logger.Info("chat turn completed",
		zap.String("session_id", sessionID),
		zap.Bool("with_context", contextText != ""),
	)
	return answer, nil
}

// Sessions lists the user's sessions, most recently created first.
func (s *ChatService) Sessions(ctx context.Context, uid string) ([]store.Session, error) {
	return s.dbStore.GetSessionsForUser(uid)
}

// Session fetches one session with its messages.
func (s *ChatService) Session(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.dbStore.GetSession(sessionID)
}
