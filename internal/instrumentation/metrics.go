package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OAuth counters
type Metrics struct {
	CodesIssued   metric.Int64Counter
	TokensIssued  metric.Int64Counter
	GrantsFailed  metric.Int64Counter
	TokensRevoked metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CodesIssued, err = meter.Int64Counter(
		"oauth.codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create codes.issued counter: %w", err)
	}

	m.TokensIssued, err = meter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of access and refresh tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.issued counter: %w", err)
	}

	m.GrantsFailed, err = meter.Int64Counter(
		"oauth.grants.failed",
		metric.WithDescription("Number of rejected authorization and token requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants.failed counter: %w", err)
	}

	m.TokensRevoked, err = meter.Int64Counter(
		"oauth.tokens.revoked",
		metric.WithDescription("Number of tokens revoked"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.revoked counter: %w", err)
	}
	return m, nil
}

func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}

func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grantType, tokenType string) {
	if m == nil {
		return
	}
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String(AttrGrantType, grantType),
		attribute.String(AttrTokenType, tokenType),
	))
}

// RecordGrantFailed counts a rejected request by endpoint and error code
func (m *Metrics) RecordGrantFailed(ctx context.Context, endpoint, code string) {
	if m == nil {
		return
	}
	m.GrantsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("oauth.endpoint", endpoint),
		attribute.String(AttrError, code),
	))
}

func (m *Metrics) RecordTokenRevoked(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrClientID, clientID)))
}
