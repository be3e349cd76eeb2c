package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/franciscosanchezn/authzilla/internal/auth"
	"github.com/franciscosanchezn/authzilla/internal/authcode"
	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/franciscosanchezn/authzilla/internal/database"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/franciscosanchezn/authzilla/internal/store"
	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackURI = "https://example.com/callback"

type testServer struct {
	router  *gin.Engine
	svc     *auth.OAuthService
	users   services.UserService
	clients services.ClientService
	owner   *models.User
	client  *models.OAuthClient
	secret  string
	cookie  *http.Cookie
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.ServerConfig{
		Issuer:            "https://auth.example.com",
		Audience:          "https://api.example.com",
		AuthCodeKey:       []byte("0123456789abcdef0123456789abcdef"),
		AuthCodeCipher:    config.CipherAESGCM,
		AuthCodeTTL:       10 * time.Minute,
		JWTAlgorithm:      "HS256",
		AccessTokenSecret: []byte("access-token-secret-for-tests-32b!"),
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		SessionCookieName: "authzilla_session",
		SessionTTL:        12 * time.Hour,
	}

	db, err := database.InitDatabase(context.Background(), database.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	codec, err := authcode.NewCodec(cfg)
	require.NoError(t, err)
	issuer, err := tokens.NewIssuer(cfg)
	require.NoError(t, err)

	s := &testServer{
		users:   services.NewUserService(db),
		clients: services.NewClientService(db),
	}
	s.svc = auth.NewOAuthService(cfg, codec, issuer, s.clients, store.NewGormStore(db))

	s.router = gin.New()
	SetupRoutes(s.router, Dependencies{
		OAuth:   s.svc,
		Users:   s.users,
		Clients: s.clients,
		Cookie:  CookieSettings{Name: cfg.SessionCookieName, MaxAge: int(cfg.SessionTTL.Seconds())},
	})

	s.owner = &models.User{Email: gofakeit.Email(), Name: gofakeit.Name(), Password: "correct-horse-battery"}
	require.NoError(t, s.users.CreateUser(context.Background(), s.owner))

	s.client, s.secret, err = s.clients.CreateClient(context.Background(), s.owner.ID, services.CreateClientInput{
		Name:         "cl-1",
		RedirectURIs: []string{callbackURI},
	})
	require.NoError(t, err)

	session, err := s.svc.IssueSession(s.owner.ID, s.owner.Email)
	require.NoError(t, err)
	s.cookie = &http.Cookie{Name: cfg.SessionCookieName, Value: session}
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) authorize(t *testing.T, query url.Values, withSession bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+query.Encode(), nil)
	if withSession {
		req.AddCookie(s.cookie)
	}
	return s.do(req)
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthorizeAndExchange(t *testing.T) {
	s := setupServer(t)

	w := s.authorize(t, url.Values{
		"client_id":     {s.client.ID},
		"response_type": {"code"},
		"redirect_uri":  {callbackURI},
		"state":         {"xyz"},
	}, true)
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "example.com", location.Host)
	assert.Equal(t, "/callback", location.Path)
	assert.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	w = s.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {callbackURI},
		"client_id":     {s.client.ID},
		"client_secret": {s.secret},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
}

func TestAuthorizeErrorsAreJSON(t *testing.T) {
	s := setupServer(t)

	testCases := []struct {
		name         string
		query        url.Values
		session      bool
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "redirect uri not registered",
			query:        url.Values{"client_id": {s.client.ID}, "response_type": {"code"}, "redirect_uri": {"https://evil.example/callback"}},
			session:      true,
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid_request",
		},
		{
			name:         "missing client_id",
			query:        url.Values{"response_type": {"code"}},
			session:      true,
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid_request",
		},
		{
			name:         "not logged in",
			query:        url.Values{"client_id": {s.client.ID}, "response_type": {"code"}},
			expectedCode: http.StatusUnauthorized,
			expectedErr:  "unauthorized",
		},
		{
			name:         "unsupported response type",
			query:        url.Values{"client_id": {s.client.ID}, "response_type": {"token"}},
			session:      true,
			expectedCode: http.StatusBadRequest,
			expectedErr:  "unsupported_response_type",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			w := s.authorize(t, tt.query, tt.session)
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Empty(t, w.Header().Get("Location"))
			assert.Equal(t, tt.expectedErr, decodeBody(t, w)["error"])
		})
	}
}

func TestAuthorizeErrorRedirect(t *testing.T) {
	s := setupServer(t)

	w := s.authorize(t, url.Values{
		"client_id":     {s.client.ID},
		"response_type": {"code"},
		"state":         {"abc"},
		"resource":      {"not-a-uri"},
	}, true)
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_target", location.Query().Get("error"))
	assert.Equal(t, "abc", location.Query().Get("state"))
	assert.Empty(t, location.Query().Get("code"))
}

func TestTokenBasicAuth(t *testing.T) {
	s := setupServer(t)

	req := postForm("/oauth/token", url.Values{"grant_type": {"client_credentials"}})
	req.SetBasicAuth(url.QueryEscape(s.client.ID), url.QueryEscape(s.secret))
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.NotEmpty(t, body["access_token"])
	assert.NotContains(t, body, "refresh_token")

	req = postForm("/oauth/token", url.Values{"grant_type": {"client_credentials"}})
	req.SetBasicAuth(s.client.ID, "wrong")
	w = s.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="authzilla"`, w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "invalid_client", decodeBody(t, w)["error"])
}

func TestTokenRejectsMixedClientAuthentication(t *testing.T) {
	s := setupServer(t)
	other, otherSecret, err := s.clients.CreateClient(t.Context(), s.owner.ID, services.CreateClientInput{Name: "other"})
	require.NoError(t, err)

	testCases := []struct {
		name string
		form url.Values
	}{
		{name: "secret in both", form: url.Values{"grant_type": {"client_credentials"}, "client_secret": {s.secret}}},
		{name: "form secret of another client", form: url.Values{"grant_type": {"client_credentials"}, "client_id": {other.ID}, "client_secret": {otherSecret}}},
		{name: "different form client_id", form: url.Values{"grant_type": {"client_credentials"}, "client_id": {other.ID}}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			req := postForm("/oauth/token", tt.form)
			req.SetBasicAuth(s.client.ID, s.secret)
			w := s.do(req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decodeBody(t, w)["error"])
		})
	}

	// repeating the Basic client_id in the form is allowed
	req := postForm("/oauth/token", url.Values{"grant_type": {"client_credentials"}, "client_id": {s.client.ID}})
	req.SetBasicAuth(s.client.ID, s.secret)
	w := s.do(req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTokenErrors(t *testing.T) {
	s := setupServer(t)

	testCases := []struct {
		name         string
		form         url.Values
		expectedCode int
		expectedErr  string
	}{
		{name: "missing grant_type", form: url.Values{}, expectedCode: http.StatusBadRequest, expectedErr: "invalid_request"},
		{name: "password grant", form: url.Values{"grant_type": {"password"}}, expectedCode: http.StatusBadRequest, expectedErr: "unsupported_grant_type"},
		{name: "bad code", form: url.Values{"grant_type": {"authorization_code"}, "code": {"bogus"}, "client_id": {s.client.ID}, "client_secret": {s.secret}}, expectedCode: http.StatusBadRequest, expectedErr: "invalid_grant"},
		{name: "unknown client", form: url.Values{"grant_type": {"client_credentials"}, "client_id": {"cl-nope"}, "client_secret": {"x"}}, expectedCode: http.StatusUnauthorized, expectedErr: "invalid_client"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(postForm("/oauth/token", tt.form))
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedErr, decodeBody(t, w)["error"])
		})
	}
}

func TestRevokeAndIntrospect(t *testing.T) {
	s := setupServer(t)

	w := s.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.client.ID},
		"client_secret": {s.secret},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody(t, w)["access_token"].(string)

	w = s.do(postForm("/oauth/introspect", url.Values{"token": {token}}))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, s.client.ID, body["client_id"])

	w = s.do(postForm("/oauth/revoke", url.Values{"token": {token}, "token_type_hint": {"access_token"}}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(postForm("/oauth/revoke", url.Values{"token": {token}}))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(postForm("/oauth/introspect", url.Values{"token": {token}}))
	assert.JSONEq(t, `{"active":false}`, w.Body.String())

	w = s.do(postForm("/oauth/revoke", url.Values{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, w)["error"])
}

func TestJWKSForHMACServer(t *testing.T) {
	s := setupServer(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"kty"`)
}

// authorizeCode runs the authorization endpoint as the owner and returns the code
func (s *testServer) authorizeCode(t *testing.T, resources ...string) string {
	t.Helper()
	w := s.authorize(t, url.Values{"client_id": {s.client.ID}, "response_type": {"code"}, "resource": resources}, true)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}
