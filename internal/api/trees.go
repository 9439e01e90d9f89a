package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/layout"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
)

// CreateTreeRequest accepts the prompt either as "prompt" or as
// "content.text". The remaining content fields describe an optional
// attachment.
type CreateTreeRequest struct {
	Username string `json:"username"`
	Prompt   string `json:"prompt,omitempty"`
	Content  struct {
		Text string      `json:"text"`
		Type source.Type `json:"type,omitempty"`
		URL  string      `json:"url,omitempty"`
		Data string      `json:"data,omitempty"`
	} `json:"content"`
}

func handleCreateTree(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTreeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		prompt := req.Prompt
		if strings.TrimSpace(prompt) == "" {
			prompt = req.Content.Text
		}

		out, err := deps.Service.CreateTree(r.Context(), bonsai.CreateTreeInput{
			Username: req.Username,
			Prompt:   prompt,
			Source:   source.Source{Type: req.Content.Type, URL: req.Content.URL, Data: req.Content.Data},
		})
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func handleListTrees(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := deps.Service.ListTrees(r.Context(), storage.TreeFilter{
			Search:  q.Get("search"),
			OwnerID: q.Get("owner_id"),
			Page:    parseIntParam(r, "page", 1, 0),
			Limit:   parseIntParam(r, "limit", 10, 100),
		})
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func handleGetTree(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := deps.Service.GetTree(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := deps.Service.Document(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

type regenerateRequest struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt,omitempty"`
}

func handleRegenerateTree(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req regenerateRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		prompt := req.Text
		if prompt == "" {
			prompt = req.Prompt
		}
		out, err := deps.Service.RegenerateTree(r.Context(), chi.URLParam(r, "id"), prompt)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// layoutNode adds the renderer-facing fields to a positioned node.
type layoutNode struct {
	layout.Node
	RenderType     string          `json:"renderType"`
	RenderPosition layout.Position `json:"renderPosition"`
}

type layoutResponse struct {
	Nodes []layoutNode  `json:"nodes"`
	Edges []layout.Edge `json:"edges"`
}

func handleLayout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts []layout.Option
		if raw := r.URL.Query().Get("jitter_seed"); raw != "" {
			seed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "jitter_seed must be an unsigned integer")
				return
			}
			opts = append(opts, layout.WithJitter(seed))
		}

		g, err := deps.Service.Layout(r.Context(), chi.URLParam(r, "id"), opts...)
		if err != nil {
			serviceError(w, err)
			return
		}
		resp := layoutResponse{Nodes: make([]layoutNode, len(g.Nodes)), Edges: g.Edges}
		for i, n := range g.Nodes {
			resp.Nodes[i] = layoutNode{Node: n, RenderType: n.RenderType(), RenderPosition: n.RenderPosition()}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type spanResponse struct {
	NodeID string `json:"node_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
}

func handleLocateNode(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := chi.URLParam(r, "nodeID")
		span, err := deps.Service.LocateNode(r.Context(), chi.URLParam(r, "id"), nodeID)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, spanResponse{NodeID: nodeID, Start: span.Start, End: span.End, Text: span.Text})
	}
}

func handleNodeContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := deps.Service.NodeContent(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeID"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type quizRequest struct {
	Username string `json:"username"`
}

type quizResponse struct {
	Quizzes []storage.Quiz `json:"quizzes"`
}

func handleCreateQuiz(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizRequest
		if !decodeBody(w, r, &req) {
			return
		}
		saved, err := deps.Service.CreateQuiz(r.Context(), chi.URLParam(r, "treeID"), req.Username)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, quizResponse{Quizzes: saved})
	}
}

func handleListQuizzes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizzes, err := deps.Service.ListQuizzes(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quizResponse{Quizzes: quizzes})
	}
}
