package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mentalhealth-ai.bd/companion/internal/auth"
	"mentalhealth-ai.bd/companion/internal/model"
)

type SignupRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

// SignupResponse carries a session only when no e-mail confirmation is pending.
type SignupResponse struct {
	User    *model.AuthUser    `json:"user"`
	Session *model.AuthSession `json:"session"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	user, session, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserAlreadyRegistered):
			writeError(w, http.StatusUnprocessableEntity, "user_already_exists", err.Error())
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			h.logger.Error("sign-up failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		}
		return
	}
	writeJSON(w, http.StatusOK, SignupResponse{User: user, Session: session})
}

type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenHandler implements grant_type=password.
func (h *APIHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if gt := r.URL.Query().Get("grant_type"); gt != "password" {
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type: "+gt)
		return
	}
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Email and password are required")
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.metrics.RecordSignIn("invalid_credentials")
			writeError(w, http.StatusBadRequest, "invalid_credentials", err.Error())
		case errors.Is(err, auth.ErrEmailNotConfirmed):
			h.metrics.RecordSignIn("email_not_confirmed")
			writeError(w, http.StatusBadRequest, "email_not_confirmed", err.Error())
		default:
			h.metrics.RecordSignIn("error")
			h.logger.Error("sign-in failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to sign in")
		}
		return
	}
	h.metrics.RecordSignIn("success")
	writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := h.auth.SignOut(r.Context(), p.Claims); err != nil {
		h.logger.Error("sign-out failed", slog.String("user_id", p.User.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFrom(r.Context()).User)
}

type UpdateUserRequest struct {
	Password string `json:"password"`
}

func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	user, err := h.auth.UpdatePassword(r.Context(), p.User.ID, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, "weak_password", err.Error())
			return
		}
		h.logger.Error("password update failed", slog.String("user_id", p.User.ID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type RecoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

func (h *APIHandler) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.auth.Recover(r.Context(), req.Email, req.RedirectTo); err != nil {
		h.logger.Error("recovery failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to send recovery email")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// VerifyHandler consumes a link from a confirmation or recovery mail.
func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session, redirectTo, err := h.auth.Verify(r.Context(), q.Get("token"), q.Get("type"))
	if err != nil {
		writeError(w, http.StatusForbidden, "otp_expired", "Email link is invalid or has expired")
		return
	}
	if redirectTo == "" {
		redirectTo = q.Get("redirect_to")
	}
	if redirectTo == "" {
		writeJSON(w, http.StatusOK, map[string]any{"verified": true, "session": session})
		return
	}
	http.Redirect(w, r, withSessionFragment(redirectTo, session), http.StatusFound)
}

func (h *APIHandler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.auth.AuthorizeURL(q.Get("provider"), q.Get("redirect_to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *APIHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "oauth_error", e)
		return
	}
	session, redirectTo, err := h.auth.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback failed", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "oauth_error", "Unable to complete sign-in")
		return
	}
	if redirectTo == "" {
		writeJSON(w, http.StatusOK, session)
		return
	}
	http.Redirect(w, r, withSessionFragment(redirectTo, session), http.StatusFound)
}

// withSessionFragment appends the session to the redirect URL's fragment.
func withSessionFragment(target string, session *model.AuthSession) string {
	if session == nil {
		return target
	}
	frag := url.Values{
		"access_token": {session.AccessToken},
		"token_type":   {session.TokenType},
		"expires_in":   {strconv.FormatInt(session.ExpiresIn, 10)},
	}
	base, _, _ := strings.Cut(target, "#")
	return base + "#" + frag.Encode()
}
