package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/auth"
	"github.com/transitassist/chatbot/internal/core"
	"github.com/transitassist/chatbot/internal/store"
)

type mockChatService struct {
	registerFn     func(ctx context.Context, name, email, password string) (string, error)
	loginFn        func(ctx context.Context, name, password string) (string, string, error)
	startSessionFn func(ctx context.Context, uid string) (string, error)
	queryFn        func(ctx context.Context, sessionID, query string) (string, error)
	sessionsFn     func(ctx context.Context, uid string) ([]store.Session, error)
	sessionFn      func(ctx context.Context, sessionID string) (*store.Session, error)
}

func (m *mockChatService) Register(ctx context.Context, name, email, password string) (string, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return "", errors.New("not implemented")
}

func (m *mockChatService) Login(ctx context.Context, name, password string) (string, string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, name, password)
	}
	return "", "", errors.New("not implemented")
}

func (m *mockChatService) StartSession(ctx context.Context, uid string) (string, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, uid)
	}
	return "", errors.New("not implemented")
}

func (m *mockChatService) Query(ctx context.Context, sessionID, query string) (string, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sessionID, query)
	}
	return "", errors.New("not implemented")
}

func (m *mockChatService) Sessions(ctx context.Context, uid string) ([]store.Session, error) {
	if m.sessionsFn != nil {
		return m.sessionsFn(ctx, uid)
	}
	return nil, errors.New("not implemented")
}

func (m *mockChatService) Session(ctx context.Context, sessionID string) (*store.Session, error) {
	if m.sessionFn != nil {
		return m.sessionFn(ctx, sessionID)
	}
	return nil, errors.New("not implemented")
}

func newTestRouter(svc ChatService) http.Handler {
	logger := zap.NewNop()
	return NewRouter(NewAPIHandler(svc, logger), auth.NewTokenManager("test-secret"), "testdata", logger)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegistrationMissingFields(t *testing.T) {
	svc := &mockChatService{
		registerFn: func(ctx context.Context, name, email, password string) (string, error) {
			if name == "" {
				return "", core.ErrValidation
			}
			return "u1", nil
		},
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/registration", map[string]string{"email": "a@x.com", "password": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")
}

func TestRegistrationSuccess(t *testing.T) {
	svc := &mockChatService{
		registerFn: func(ctx context.Context, name, email, password string) (string, error) {
			return "u1", nil
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/registration",
		map[string]string{"name": "alice", "email": "a@x.com", "password": "p1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "User registered successfully", resp["message"])
}

func TestLoginMissingFields(t *testing.T) {
	router := newTestRouter(&mockChatService{})

	rec := doJSON(t, router, http.MethodPost, "/login", map[string]string{"password": "p1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	rec = doJSON(t, router, http.MethodPost, "/login", map[string]string{"name": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := &mockChatService{
		loginFn: func(ctx context.Context, name, password string) (string, string, error) {
			return "", "", core.ErrInvalidCredentials
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/login",
		map[string]string{"name": "alice", "password": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")
}

func TestLoginSuccess(t *testing.T) {
	svc := &mockChatService{
		loginFn: func(ctx context.Context, name, password string) (string, string, error) {
			return "U1", "signed-token", nil
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/login",
		map[string]string{"name": "alice", "password": "p1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Login successful", resp["message"])
	assert.Equal(t, "U1", resp["UID"])
	assert.Equal(t, "signed-token", resp["token"])
}

func TestStartSession(t *testing.T) {
	svc := &mockChatService{
		startSessionFn: func(ctx context.Context, uid string) (string, error) {
			assert.Equal(t, "U1", uid)
			return "S1", nil
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/start_session", map[string]string{"UID": "U1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "S1", resp["session_id"])
}

func TestQueryMissingSessionID(t *testing.T) {
	rec := doJSON(t, newTestRouter(&mockChatService{}), http.MethodPost, "/query",
		map[string]string{"query": "hello"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id is required")
}

func TestQueryUnknownSession(t *testing.T) {
	svc := &mockChatService{
		queryFn: func(ctx context.Context, sessionID, query string) (string, error) {
			return "", store.ErrSessionNotFound
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/query",
		map[string]string{"query": "hello", "session_id": "nonexistent-id"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuerySuccess(t *testing.T) {
	svc := &mockChatService{
		queryFn: func(ctx context.Context, sessionID, query string) (string, error) {
			assert.Equal(t, "S1", sessionID)
			assert.Equal(t, "what are the fare rules?", query)
			return "Hello! The fare rules are...", nil
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/query",
		map[string]string{"query": "what are the fare rules?", "session_id": "S1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello! The fare rules are...", resp["response"])
}

func TestListChatsStoreFailureIsSanitized(t *testing.T) {
	svc := &mockChatService{
		sessionsFn: func(ctx context.Context, uid string) ([]store.Session, error) {
			return nil, errors.New("dial tcp 10.0.0.3:5432: connection refused")
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/chats", map[string]string{"UID": "U1"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3", "internal detail must not leak")
	assert.Contains(t, rec.Body.String(), "Failed to fetch chats")
}

func TestListChatsSerializesStringifiedID(t *testing.T) {
	svc := &mockChatService{
		sessionsFn: func(ctx context.Context, uid string) ([]store.Session, error) {
			return []store.Session{{
				ID:        7,
				SessionID: "S1",
				UID:       uid,
				Messages: []store.ChatTurn{
					{User: "q", Context: "c", Chatbot: "a", Timestamp: time.Now()},
				},
				CreatedAt: time.Now(),
			}}, nil
		},
	}
	rec := doJSON(t, newTestRouter(svc), http.MethodPost, "/chats", map[string]string{"UID": "U1"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "7", resp[0]["_id"], "_id must serialize as a string")
	assert.Equal(t, "S1", resp[0]["session_id"])
}

func TestGetChatNotFound(t *testing.T) {
	svc := &mockChatService{
		sessionFn: func(ctx context.Context, sessionID string) (*store.Session, error) {
			return nil, store.ErrSessionNotFound
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/chats/nonexistent-id", nil)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session not found")
}

func TestGetChatSuccess(t *testing.T) {
	svc := &mockChatService{
		sessionFn: func(ctx context.Context, sessionID string) (*store.Session, error) {
			return &store.Session{ID: 1, SessionID: sessionID, UID: "U1", Messages: []store.ChatTurn{}}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/chats/S1", nil)
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "S1", resp["session_id"])
}

func TestLivenessProbe(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&mockChatService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello", resp["response"])
}

func TestBearerAuthRejectsBadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	newTestRouter(&mockChatService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret")
	token, err := tokens.Generate("U1")
	require.NoError(t, err)

	logger := zap.NewNop()
	router := NewRouter(NewAPIHandler(&mockChatService{}, logger), tokens, "testdata", logger)

	req := httptest.NewRequest(http.MethodGet, "/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	rec := httptest.NewRecorder()
	newTestRouter(&mockChatService{}).ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, rec.Code == http.StatusNoContent || rec.Code == http.StatusOK)
}

func TestInvalidJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	newTestRouter(&mockChatService{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
