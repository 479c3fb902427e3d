package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/services"
	"github.com/agronect/apiserver/internal/validation"
	"github.com/go-chi/chi/v5"
)

const (
	msgSignupSuccess  = "User created successfully"
	msgSigninSuccess  = "Login success"
	msgSignoutSuccess = "Signout success"
	msgUnauthorized   = "Token is invalid or expired"
	msgInvalidRequest = "invalid request"
)

// TokenVerifier validates bearer tokens for protected routes.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AuthHandler exposes signup, signin and signout.
type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService) {
	handler := NewAuthHandler(authService)

	r.Post("/signup", handler.Signup)
	r.Post("/signin", handler.Signin)
	r.Post("/signout", handler.Signout)
}

// RequireAuth verifies the bearer token and injects its claims into the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := services.BearerToken(r.Header.Get("Authorization"))
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninResponse is flat: the token travels beside the profile, not under data.
type SigninResponse struct {
	Status          string `json:"status"`
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	PhotoProfileURL string `json:"photoProfileUrl"`
	AccessToken     string `json:"access_token"`
	Message         string `json:"message"`
}

// Signup creates a new user account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeBody(r, &req, func(get func(string) string) {
		req.Name, req.Email, req.Password = get("name"), get("email"), get("password")
	}); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := validation.ValidateSignup(req.Name, req.Email, req.Password); err != nil {
		writeValidation(w, err)
		return
	}

	profile, err := h.authService.Signup(r.Context(), services.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, msgSignupSuccess, profile)
}

// Signin verifies credentials and returns an access token.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := decodeBody(r, &req, func(get func(string) string) {
		req.Email, req.Password = get("email"), get("password")
	}); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	if err := validation.ValidateSignin(req.Email, req.Password); err != nil {
		writeValidation(w, err)
		return
	}

	result, err := h.authService.Signin(r.Context(), services.SigninInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SigninResponse{
		Status:          statusSuccess,
		UserID:          result.UserID,
		Name:            result.Name,
		Email:           result.Email,
		PhotoProfileURL: result.PhotoProfileURL,
		AccessToken:     result.AccessToken,
		Message:         msgSigninSuccess,
	})
}

// Signout records a logout for the presented bearer token without verifying it.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Signout(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeFailure(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgSignoutSuccess, nil)
}

// decodeBody reads a JSON body into dst, or a urlencoded form through fromForm.
func decodeBody(r *http.Request, dst any, fromForm func(get func(string) string)) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return err
		}
		fromForm(r.PostForm.Get)
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
