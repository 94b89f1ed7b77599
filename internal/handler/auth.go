package handler

import (
	"context"
	"net/http"

	"github.com/sakif/company-ingest/internal/apperror"
	"github.com/sakif/company-ingest/internal/auth"
	"github.com/sakif/company-ingest/internal/model"
	"github.com/sakif/company-ingest/internal/service"
)

// AuthService is what AuthHandler needs from service.AuthService.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*service.LoginResult, error)
	Refresh(ctx context.Context, in service.RefreshInput) (string, error)
}

// AuthHandler manages registration, login and token refresh.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account
//   - HandleLogin    → verify credentials, return access + refresh tokens
//   - HandleRefresh  → trade a refresh token for a new access token
//   - HandleMe       → return the currently authenticated user
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{auth: svc}
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type userDetails struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	RefreshToken string      `json:"refresh_token"`
	UserDetails  userDetails `json:"user_details"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleRegister creates a user.
//
// HTTP: POST /auth/register/
// REQUEST BODY: {"first_name","last_name","email","password","confirm_password"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Message: "User created successfully",
		UserID:  user.ID,
	})
}

// HandleLogin exchanges credentials for tokens.
//
// HTTP: POST /auth/login/
// REQUEST BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		TokenType:    "bearer",
		RefreshToken: res.RefreshToken,
		UserDetails: userDetails{
			UserID:    res.User.ID,
			Email:     res.User.Email,
			FirstName: res.User.FirstName,
			LastName:  res.User.LastName,
		},
	})
}

// HandleRefresh issues a new access token.
//
// HTTP: POST /auth/refresh_token/
// REQUEST BODY: {"hash_slug": "<refresh token>"}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in service.RefreshInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	access, err := h.auth.Refresh(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{AccessToken: access, TokenType: "bearer"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /auth/me
// Auth: Required (RequireAuth puts the user in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Could not validate credentials"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}
