package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/core"
	"github.com/transitassist/chatbot/internal/store"
)

// ChatService is the surface the handlers need; the concrete
// implementation lives in internal/core.
type ChatService interface {
	Register(ctx context.Context, name, email, password string) (string, error)
	Login(ctx context.Context, name, password string) (uid, token string, err error)
	StartSession(ctx context.Context, uid string) (string, error)
	Query(ctx context.Context, sessionID, query string) (string, error)
	Sessions(ctx context.Context, uid string) ([]store.Session, error)
	Session(ctx context.Context, sessionID string) (*store.Session, error)
}

type APIHandler struct {
	chatService ChatService
	logger      *zap.Logger
}

func NewAPIHandler(cs ChatService, logger *zap.Logger) *APIHandler {
	return &APIHandler{chatService: cs, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the {"detail": ...} error body clients expect.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type StartSessionRequest struct {
	UID string `json:"UID"`
}

func (h *APIHandler) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessionID, err := h.chatService.StartSession(r.Context(), req.UID)
	if err != nil {
		h.logger.Error("failed to start session", zap.String("uid", req.UID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

type RegistrationRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) RegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.chatService.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		if errors.Is(err, core.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to register user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered successfully"})
}

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	uid, token, err := h.chatService.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"UID":     uid,
		"token":   token,
	})
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	answer, err := h.chatService.Query(r.Context(), req.SessionID, req.Query)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("query failed", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to answer query")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

type ListChatsRequest struct {
	UID string `json:"UID"`
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	var req ListChatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessions, err := h.chatService.Sessions(r.Context(), req.UID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.String("uid", req.UID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch chats")
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatService.Session(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("failed to get chat", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch chat")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// LivenessHandler answers GET /query, the liveness probe clients hit.
func (h *APIHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"response": "Hello"})
}

func (h *APIHandler) HelloHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello"})
}
