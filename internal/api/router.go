package api

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/transitassist/chatbot/internal/auth"
)

func NewRouter(apiHandler *APIHandler, tokens *auth.TokenManager, staticDir string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(CORS)
	r.Use(RequestLogger(logger))
	r.Use(BearerAuth(tokens))

	r.Post("/start_session", apiHandler.StartSessionHandler)
	r.Post("/registration", apiHandler.RegistrationHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Post("/query", apiHandler.QueryHandler)
	r.Get("/query", apiHandler.LivenessHandler)
	r.Post("/chats", apiHandler.ListChatsHandler)
	r.Get("/chats/{sessionID}", apiHandler.GetChatHandler)
	r.Get("/hello", apiHandler.HelloHandler)

	// Landing page and its assets.
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.ServeFile(w, req, filepath.Join(staticDir, "index.html"))
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	return r
}
