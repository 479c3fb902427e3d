package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/agronect/apiserver/internal/auth"
	"github.com/agronect/apiserver/internal/logging"
	"github.com/agronect/apiserver/internal/services"
	"github.com/agronect/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()

	dbConn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbConn.Close() })

	tokens, err := auth.NewTokenIssuer("router-secret")
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := logging.New(&logs, "info")
	repo := store.NewUserRepository(dbConn)
	hasher := auth.NewBcryptHasher()

	authService := services.NewAuthService(repo, hasher, tokens, services.WithAuthLogger(logger))
	userService := services.NewUserService(repo, hasher, nil, logger)

	return newRouter(logger, authService, userService, tokens, 0), mock, &logs
}

func TestRouterBasics(t *testing.T) {
	router, _, logs := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agronect")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "Not found", body["message"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/signin", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Contains(t, logs.String(), `"path":"/does-not-exist"`)
	assert.Contains(t, logs.String(), `"request_id"`)
}

func TestRouterSigninUnregistered(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email = \\$1").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "name", "email", "photo_profile_url", "password", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodPost, "/signin", bytes.NewBufferString(`{"email":"nobody@example.com","password":"Password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), services.MsgEmailNotRegistered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouterProtectedRoutesNeedToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/users/change-password/abc", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
