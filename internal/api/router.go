// Package api serves the knowledge tree service over HTTP and MCP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
)

const maxRequestBodySize = 12 << 20 // base64 PDF attachments

type Deps struct {
	Service *bonsai.Service
	// Token guards every route except /health when not empty.
	Token string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/trees", handleCreateTree(deps))
		r.Get("/trees", handleListTrees(deps))
		r.Get("/trees/{id}", handleGetTree(deps))
		r.Get("/trees/{id}/document", handleGetDocument(deps))
		r.Post("/trees/{id}/regenerate", handleRegenerateTree(deps))
		r.Get("/trees/{id}/layout", handleLayout(deps))
		r.Get("/trees/{id}/nodes/{nodeID}", handleLocateNode(deps))
		r.Post("/trees/{id}/nodes/{nodeID}", handleNodeContent(deps))
		r.Get("/trees/{id}/quizzes", handleListQuizzes(deps))
		r.Post("/quizzes/{treeID}", handleCreateQuiz(deps))

		r.Get("/users", handleListUsers(deps))
		r.Post("/users", handleCreateUser(deps))
		r.Get("/users/{id}", handleGetUser(deps))
		r.Put("/users/{id}", handleUpdateUser(deps))
		r.Delete("/users/{id}", handleDeleteUser(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
