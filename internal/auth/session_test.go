package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/franciscosanchezn/authzilla/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	cookie, err := f.svc.IssueSession(f.owner.ID, f.owner.Email)
	require.NoError(t, err)

	principal, err := f.svc.SessionPrincipal(cookie)
	require.NoError(t, err)
	assert.Equal(t, principalFor(f.owner), principal)
}

func TestSessionRejectsAccessToken(t *testing.T) {
	f := newFixture(t, nil)
	issued, err := f.exchange(f.authorizeCode(t, AuthorizeRequest{}), "")
	require.NoError(t, err)

	_, err = f.svc.SessionPrincipal(issued.AccessToken)
	assert.Error(t, err)

	_, err = f.svc.SessionPrincipal("")
	assert.Error(t, err)
}

func TestVerifyManagementToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	code := f.authorizeCode(t, AuthorizeRequest{Resources: []string{f.svc.ManagementAudience()}})
	issued, err := f.exchange(code, "")
	require.NoError(t, err)

	claims, err := f.svc.VerifyManagementToken(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, claims.ClientID)
	assert.Equal(t, principalFor(f.owner).UserID, claims.Subject)

	_, err = f.svc.VerifyManagementToken(ctx, issued.RefreshToken)
	assert.Error(t, err, "refresh tokens are not bearer tokens")

	session, err := f.svc.IssueSession(f.owner.ID, f.owner.Email)
	require.NoError(t, err)
	_, err = f.svc.VerifyManagementToken(ctx, session)
	assert.Error(t, err, "session cookies carry another audience")

	require.NoError(t, f.svc.Revoke(ctx, issued.AccessToken, ""))
	_, err = f.svc.VerifyManagementToken(ctx, issued.AccessToken)
	assert.True(t, errors.Is(err, ErrTokenRevoked))
}

func TestVerifyManagementTokenRejectsDefaultAudience(t *testing.T) {
	f := newFixture(t, nil)
	issued, err := f.exchange(f.authorizeCode(t, AuthorizeRequest{}), "")
	require.NoError(t, err)

	_, err = f.svc.VerifyManagementToken(context.Background(), issued.AccessToken)
	assert.True(t, errors.Is(err, tokens.ErrAudienceMismatch), "got %v", err)
}

func TestVerifyManagementTokenRejectsForeignClient(t *testing.T) {
	f := newFixture(t, nil)
	stranger := f.newUser(t)
	foreign, _ := f.newClient(t, stranger, true, callbackURI)

	// the owner logs in through a client registered by someone else
	code := f.authorizeCode(t, AuthorizeRequest{ClientID: foreign.ID, Resources: []string{f.svc.ManagementAudience()}})
	issued, err := f.svc.Token(context.Background(), TokenRequest{GrantType: "authorization_code", ClientID: foreign.ID, Code: code})
	require.NoError(t, err)

	_, err = f.svc.VerifyManagementToken(context.Background(), issued.AccessToken)
	assert.True(t, errors.Is(err, ErrForeignClient), "got %v", err)
}

func TestVerifyManagementTokenRejectsClientCredentials(t *testing.T) {
	f := newFixture(t, nil)
	issued, err := f.svc.Token(context.Background(), TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     f.client.ID,
		ClientSecret: f.secret,
		Resources:    []string{f.svc.ManagementAudience()},
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyManagementToken(context.Background(), issued.AccessToken)
	assert.True(t, errors.Is(err, ErrForeignClient), "got %v", err)
}
