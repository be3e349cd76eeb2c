package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRequest(method, path string, body interface{}) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterAndLogin(t *testing.T) {
	s := setupServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "Alice@Example.com",
		"password": "wonderland-42",
		"name":     "Alice",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "alice@example.com", decodeBody(t, w)["email"])

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"password": "another-password",
	}))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wonderland-42",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "authzilla_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEmpty(t, cookies[0].Value)

	principal, err := s.svc.SessionPrincipal(cookies[0].Value)
	require.NoError(t, err)
	assert.True(t, principal.Authenticated)
}

func TestRegisterValidation(t *testing.T) {
	s := setupServer(t)

	testCases := []struct {
		name string
		body map[string]string
	}{
		{name: "missing email", body: map[string]string{"password": "long-enough"}},
		{name: "invalid email", body: map[string]string{"email": "nope", "password": "long-enough"}},
		{name: "short password", body: map[string]string{"email": "bob@example.com", "password": "short"}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(jsonRequest(http.MethodPost, "/api/v1/auth/register", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_FAILED", decodeBody(t, w)["code"])
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := setupServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    s.owner.Email,
		"password": "not-the-password",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginThenAuthorize(t *testing.T) {
	s := setupServer(t)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    s.owner.Email,
		"password": "correct-horse-battery",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	session := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?response_type=code&client_id="+s.client.ID, nil)
	req.AddCookie(session)
	w = s.do(req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), callbackURI+"?code=")
}

func TestLogout(t *testing.T) {
	s := setupServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "authzilla_session", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}
