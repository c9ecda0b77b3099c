package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/daily-diet/internal/apperror"
	"github.com/sakif/daily-diet/internal/auth"
	"github.com/sakif/daily-diet/internal/model"
	"github.com/sakif/daily-diet/internal/service"
)

// AuthHandler serves the login endpoint.
type AuthHandler struct {
	sessions *service.AuthService
	logger   *slog.Logger
}

func NewAuthHandler(sessions *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

// HandleLogin checks credentials and issues a 24h session cookie.
//
// HTTP: POST /services/login
// REQUEST BODY: {"user_name":"John Doe","password":"123456P"}
// RESPONSE:
//   - 204 with Set-Cookie on success
//   - 403 when the request already carries a session cookie, valid or not
//   - 401 on bad credentials, without saying which part was wrong
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.TokenFromRequest(r); ok {
		h.logger.Warn("login refused, request already carries a session cookie",
			slog.String("remote_addr", r.RemoteAddr),
		)
		writeError(w, apperror.Forbidden("already logged in"))
		return
	}

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("user logged in", slog.String("user_id", session.Owner()))
	auth.SetSessionCookie(w, session.Token, model.LoginSessionTTL)
	w.WriteHeader(http.StatusNoContent)
}
