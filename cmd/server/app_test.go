package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fablery/fable-api/internal/config"
	"github.com/fablery/fable-api/internal/service/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectAllJWTService struct{}

func (rejectAllJWTService) GenerateToken(context.Context, uuid.UUID) (string, error) {
	return "", auth.ErrInvalidToken
}

func (rejectAllJWTService) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return nil, auth.ErrInvalidToken
}

func testApplication() *application {
	return &application{
		config:     &config.Config{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		jwtService: rejectAllJWTService{},
	}
}

func TestNewApplicationRejectsNilDependencies(t *testing.T) {
	t.Parallel()

	_, err := newApplication(nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	router := testApplication().routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAPIRoutesRequireAuthentication(t *testing.T) {
	t.Parallel()

	router := testApplication().routes()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/stories"},
		{http.MethodGet, "/api/stories/" + uuid.NewString() + "/status"},
		{http.MethodGet, "/api/stories/" + uuid.NewString() + "/result"},
		{http.MethodPost, "/api/stories/" + uuid.NewString() + "/save"},
	}

	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}
