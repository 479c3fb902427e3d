package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/services"
	"github.com/agronect/apiserver/internal/validation"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

// Response is the envelope shared by most endpoints.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ValidationResponse adds field-level detail to a failed Response.
type ValidationResponse struct {
	Response
	Errors validation.Errors `json:"errors"`
}

func claimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(auth.Claims)
	return claims, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Status: statusSuccess, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Status: statusFailed, Message: message})
}

// writeFailure maps a service error to its status and caller-visible message.
func writeFailure(w http.ResponseWriter, err error) {
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		writeError(w, authErr.Status(), authErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, services.MsgInternal)
}

func writeValidation(w http.ResponseWriter, err error) {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusBadRequest, ValidationResponse{
		Response: Response{Status: statusFailed, Message: "Validation failed"},
		Errors:   errs,
	})
}
