package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type userRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func handleListUsers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Service.ListUsers(r.Context(), parseIntParam(r, "skip", 0, 0), parseIntParam(r, "take", 50, 500))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleCreateUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Service.CreateUser(r.Context(), req.Email, req.Name)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func handleGetUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Service.GetUser(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handleUpdateUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Service.UpdateUser(r.Context(), chi.URLParam(r, "id"), req.Email, req.Name)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handleDeleteUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
