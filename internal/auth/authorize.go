package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/franciscosanchezn/authzilla/internal/authcode"
	"github.com/franciscosanchezn/authzilla/internal/instrumentation"
	"github.com/franciscosanchezn/authzilla/internal/services"
	"github.com/go-oauth2/oauth2/v4"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Principal is the resource owner behind the current request
type Principal struct {
	Authenticated bool
	UserID        string
}

// AuthorizeRequest holds the query parameters of an authorization request.
// Scope and Resources keep every occurrence so repeated parameters can be
// rejected.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	State        string
	Scope        []string
	Resources    []string

	// ReturnTo is the URL the login page sends the user back to
	ReturnTo string
}

// AuthorizeResult is the terminal state of an authorization request. When
// RedirectURL is set the caller redirects there, whether or not Err is set.
// Otherwise Err is reported directly as JSON.
type AuthorizeResult struct {
	RedirectURL string
	Err         *Error
}

// Authorize evaluates an authorization request once. Errors found before the
// redirect URI is validated are never redirected.
func (o *OAuthService) Authorize(ctx context.Context, principal Principal, req AuthorizeRequest) *AuthorizeResult {
	ctx, span := o.inst.StartSpan(ctx, instrumentation.SpanAuthorize,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
	)
	defer span.End()

	result := o.authorize(ctx, principal, req)
	if result.Err != nil {
		instrumentation.RecordError(span, result.Err.Code(), result.Err.cause)
		o.inst.Metrics().RecordGrantFailed(ctx, "authorize", result.Err.Code())

		entry := log.WithFields(logrus.Fields{
			"client_id": req.ClientID,
			"error":     result.Err.Code(),
		})
		if result.Err.Status >= http.StatusInternalServerError {
			entry.WithError(result.Err.cause).Error("Authorization request failed")
		} else {
			entry.Debug("Authorization request rejected")
		}
		return result
	}

	instrumentation.SetSpanSuccess(span)
	o.inst.Metrics().RecordCodeIssued(ctx, req.ClientID)
	return result
}

func (o *OAuthService) authorize(ctx context.Context, principal Principal, req AuthorizeRequest) *AuthorizeResult {
	// 1. authentication
	if !principal.Authenticated || principal.UserID == "" {
		err := newError(ErrUnauthorized, http.StatusUnauthorized, "")
		if o.cfg.LoginURL != "" {
			return &AuthorizeResult{RedirectURL: loginRedirect(o.cfg.LoginURL, req.ReturnTo), Err: err}
		}
		return &AuthorizeResult{Err: err}
	}

	// 2-3. request shape
	if req.ClientID == "" {
		return &AuthorizeResult{Err: errInvalidRequest("client_id is required")}
	}
	if req.ResponseType == "" {
		return &AuthorizeResult{Err: errInvalidRequest("response_type is required")}
	}
	if oauth2.ResponseType(req.ResponseType) != oauth2.Code {
		return &AuthorizeResult{Err: newError(oautherrors.ErrUnsupportedResponseType, http.StatusBadRequest, "")}
	}

	// 4-5. client
	client, err := o.registry.Lookup(ctx, req.ClientID)
	if errors.Is(err, services.ErrClientNotFound) {
		return &AuthorizeResult{Err: newError(oautherrors.ErrInvalidClient, http.StatusBadRequest, "unknown client_id")}
	}
	if err != nil {
		return &AuthorizeResult{Err: errServer(err)}
	}
	if !client.IsPublic() && client.GetUserID() != principal.UserID {
		return &AuthorizeResult{Err: newError(oautherrors.ErrAccessDenied, http.StatusForbidden, "the client is not owned by the current user")}
	}

	// 6-8. redirect URI
	clientCfg, err := o.registry.LookupConfiguration(ctx, client.GetID())
	if errors.Is(err, services.ErrConfigurationNotFound) {
		return &AuthorizeResult{Err: newError(ErrNotFound, http.StatusNotFound, "")}
	}
	if err != nil {
		return &AuthorizeResult{Err: errServer(err)}
	}
	redirectURI, rerr := effectiveRedirectURI(clientCfg.URIs.RedirectURIs, req.RedirectURI)
	if rerr != nil {
		return &AuthorizeResult{Err: rerr}
	}
	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() || target.Host == "" {
		return &AuthorizeResult{Err: errInvalidRequest("redirect_uri must be an absolute URI")}
	}

	// From here on errors go back to the client at its redirect URI.
	fail := func(e *Error) *AuthorizeResult {
		return &AuthorizeResult{RedirectURL: errorRedirect(target, e.redirectable(), req.State), Err: e}
	}

	// 9. scope
	if len(req.Scope) > 1 {
		return fail(errInvalidRequest("scope must be a single space delimited string"))
	}
	var scope string
	if len(req.Scope) == 1 {
		scope = req.Scope[0]
	}

	// 10. resource indicators
	if err := validateResources(req.Resources); err != nil {
		return fail(err)
	}

	// 11. code
	opts := []authcode.Option{authcode.WithScope(scope), authcode.WithResources(req.Resources)}
	if req.RedirectURI != "" {
		opts = append(opts, authcode.WithRedirectURI(req.RedirectURI))
	}
	code, err := o.codec.Generate(client.GetID(), principal.UserID, opts...)
	if err != nil {
		return fail(errServer(err))
	}

	query := target.Query()
	query.Set("code", code)
	if req.State != "" {
		query.Set("state", req.State)
	}
	target.RawQuery = query.Encode()
	return &AuthorizeResult{RedirectURL: target.String()}
}

// effectiveRedirectURI applies the cardinality rule: with exactly one
// registered URI the request may omit redirect_uri, otherwise it is
// mandatory. The result is always a member of the registered set.
func effectiveRedirectURI(registered []string, requested string) (string, *Error) {
	if len(registered) == 0 {
		return "", errInvalidRequest("the client has no registered redirect URIs")
	}
	if requested == "" {
		if len(registered) > 1 {
			return "", errInvalidRequest("redirect_uri is required")
		}
		requested = registered[0]
	}
	for _, uri := range registered {
		if uri == requested {
			return requested, nil
		}
	}
	return "", errInvalidRequest("redirect_uri is not registered for this client")
}

// validateResources checks RFC 8707 resource indicators
func validateResources(resources []string) *Error {
	for _, raw := range resources {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" || strings.Contains(raw, "#") {
			return newError(ErrInvalidTarget, http.StatusBadRequest, "resource must be an absolute URI without a fragment")
		}
	}
	return nil
}

func errorRedirect(target *url.URL, e *Error, state string) string {
	u := *target
	query := u.Query()
	query.Set("error", e.Code())
	query.Set("error_description", e.Description)
	if state != "" {
		query.Set("state", state)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func loginRedirect(loginURL, returnTo string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	if returnTo != "" {
		query := u.Query()
		query.Set("return_to", returnTo)
		u.RawQuery = query.Encode()
	}
	return u.String()
}
