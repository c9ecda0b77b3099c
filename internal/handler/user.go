package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/service"
)

type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type credentialsRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

// HandleCreate registers a user.
//
// HTTP: POST /users
// REQUEST BODY: {"user_name":"John Doe","password":"123456P"}
// RESPONSE: 201 {"userId":"..."}, 400 on invalid input
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.UserName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user registered", slog.String("user_id", user.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"userId": user.ID})
}

// HandleDelete removes a user together with its sessions and meals.
//
// HTTP: DELETE /users/{id}
// RESPONSE: 204, 401 unless the session cookie belongs to that user
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	// nil when the request has no active session; the service rejects that
	session, _ := auth.SessionFromContext(r.Context())

	id := r.PathValue("id")
	if err := h.users.Delete(r.Context(), session, id); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user deleted", slog.String("user_id", id))

	w.WriteHeader(http.StatusNoContent)
}
