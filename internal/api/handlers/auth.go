package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/auth"
	"github.com/nikhilbhutani/texttospeech/internal/validation"
)

type AuthHandler struct {
	svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.svc.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, account.ErrUsernameTaken):
			writeError(w, http.StatusBadRequest, "a user with that username already exists")
		default:
			slog.Error("register failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": sess.Token})
}

// Token logs a user in, creating their token or refreshing the existing one.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.svc.ObtainToken(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msg := "Token refreshed"
	if sess.Created {
		msg = "Token created"
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:    sess.Token,
		UserID:   sess.User.ID,
		Username: sess.User.Username,
		Message:  msg,
	})
}
