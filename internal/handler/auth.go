package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/accountd/accountd/internal/model"
	"github.com/accountd/accountd/internal/service"
)

// AuthHandler handles signup, login, and current-user endpoints.
type AuthHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// loginRequest is the JSON body accepted by Login. Form and query
// parameters with the same names are accepted as well.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup handles POST /auth/signup.
// Returns 201 with the account (no hash) or 400 with a reason.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req model.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.Is(err, service.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, "email already registered")
		case errors.Is(err, service.ErrDuplicateUsername):
			writeError(w, http.StatusBadRequest, "username already taken")
		default:
			h.logger.Error("signup failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("account created",
		slog.String("account_id", account.ID.Hex()),
		slog.String("username", account.Username),
	)

	writeJSON(w, http.StatusCreated, account.ToResponse())
}

// Login handles POST /auth/login.
// Returns 200 with {access_token, token_type} on success, 401 on bad
// credentials, 403 if the account is inactive.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	identifier, password, err := loginCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := h.accounts.Login(r.Context(), identifier, password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
		case errors.Is(err, service.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "user account is inactive")
		default:
			h.logger.Error("login failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// Me handles GET /auth/me.
// The token is taken from the Authorization header (Bearer scheme) or,
// failing that, a token query parameter.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	account, err := h.accounts.CurrentUser(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "could not validate credentials")
		case errors.Is(err, service.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("current user lookup failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, account.ToResponse())
}

// loginCredentials extracts username and password from a JSON body or
// from form/query parameters. A JSON body that fails to decode is an error.
func loginCredentials(r *http.Request) (string, string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", err
		}
		return req.Username, req.Password, nil
	}
	return r.FormValue("username"), r.FormValue("password"), nil
}

// bearerToken extracts the session token from the request.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
