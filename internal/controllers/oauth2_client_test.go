package controllers

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

func startServer(t *testing.T) (*testServer, *httptest.Server) {
	s := setupServer(t)
	server := httptest.NewServer(s.router)
	t.Cleanup(server.Close)
	return s, server
}

// browser follows nothing so the test can read the redirect to the client
func browser(t *testing.T, server *httptest.Server, session *http.Cookie) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{session})

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestOAuth2ClientCodeExchange(t *testing.T) {
	s, server := startServer(t)
	ctx := context.Background()

	conf := &oauth2.Config{
		ClientID:     s.client.ID,
		ClientSecret: s.secret,
		RedirectURL:  callbackURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.URL + "/oauth/authorize",
			TokenURL:  server.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	resp, err := browser(t, server, s.cookie).Get(conf.AuthCodeURL("state-1"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "state-1", location.Query().Get("state"))

	token, err := conf.Exchange(ctx, location.Query().Get("code"))
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, time.Minute)

	// refresh through the token source once the access token is stale
	token.Expiry = time.Now().Add(-time.Minute)
	refreshed, err := conf.TokenSource(ctx, token).Token()
	require.NoError(t, err)
	assert.NotEqual(t, token.AccessToken, refreshed.AccessToken)

	// a second exchange of the same code is rejected
	_, err = conf.Exchange(ctx, location.Query().Get("code"))
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
}

func TestOAuth2ClientCredentials(t *testing.T) {
	s, server := startServer(t)

	conf := &clientcredentials.Config{
		ClientID:     s.client.ID,
		ClientSecret: s.secret,
		TokenURL:     server.URL + "/oauth/token",
		Scopes:       []string{"reports:read"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	token, err := conf.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Empty(t, token.RefreshToken)
	assert.Equal(t, "reports:read", token.Extra("scope"))

	introspected := s.svc.Introspect(context.Background(), token.AccessToken, "")
	require.True(t, introspected.Active)
	assert.Equal(t, s.client.ID, introspected.Subject)

	conf.ClientSecret = "wrong"
	_, err = conf.Token(context.Background())
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, http.StatusUnauthorized, retrieveErr.Response.StatusCode)
	assert.Equal(t, "invalid_client", retrieveErr.ErrorCode)
}
