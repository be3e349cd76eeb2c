package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/config"
	"github.com/franciscosanchezn/authzilla/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix = "authzilla:token:"
	codeKeyPrefix  = "authzilla:code:"
	minKeyTTL      = time.Second
)

// NewRedisClient creates a redis client from the application configuration
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// RedisStore keeps token records as hashes and code redemptions as plain keys.
// Every key expires together with the token or code it describes.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now()) + expiryGrace
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}

func (s *RedisStore) Record(ctx context.Context, record *models.TokenRecord) error {
	key := tokenKeyPrefix + record.JTI
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"client_id":  record.ClientID,
		"subject":    record.Subject,
		"token_type": record.TokenType,
		"scope":      record.Scope,
		"issued_at":  record.IssuedAt.Unix(),
		"expires_at": record.ExpiresAt.Unix(),
	})
	pipe.Expire(ctx, key, s.ttl(record.ExpiresAt))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, record *models.TokenRecord) error {
	_, err := s.revoke(ctx, record)
	return err
}

func (s *RedisStore) RevokeOnce(ctx context.Context, record *models.TokenRecord) error {
	first, err := s.revoke(ctx, record)
	if err != nil {
		return err
	}
	if !first {
		return ErrAlreadyRevoked
	}
	return nil
}

// revoke sets revoked_at unless present and reports whether this call set it
func (s *RedisStore) revoke(ctx context.Context, record *models.TokenRecord) (bool, error) {
	key := tokenKeyPrefix + record.JTI
	pipe := s.rdb.TxPipeline()
	revokedAt := pipe.HSetNX(ctx, key, "revoked_at", s.now().Unix())
	pipe.HSetNX(ctx, key, "client_id", record.ClientID)
	pipe.HSetNX(ctx, key, "subject", record.Subject)
	pipe.HSetNX(ctx, key, "token_type", record.TokenType)
	pipe.HSetNX(ctx, key, "expires_at", record.ExpiresAt.Unix())
	pipe.Expire(ctx, key, s.ttl(record.ExpiresAt))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return revokedAt.Val(), nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.HExists(ctx, tokenKeyPrefix+jti, "revoked_at").Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, jti string) (*models.TokenRecord, error) {
	var fields struct {
		ClientID  string `redis:"client_id"`
		Subject   string `redis:"subject"`
		TokenType string `redis:"token_type"`
		Scope     string `redis:"scope"`
		IssuedAt  int64  `redis:"issued_at"`
		ExpiresAt int64  `redis:"expires_at"`
		RevokedAt int64  `redis:"revoked_at"`
	}
	cmd := s.rdb.HGetAll(ctx, tokenKeyPrefix+jti)
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, ErrNotFound
	}
	if err := cmd.Scan(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	record := &models.TokenRecord{
		JTI:       jti,
		ClientID:  fields.ClientID,
		Subject:   fields.Subject,
		TokenType: fields.TokenType,
		Scope:     fields.Scope,
		IssuedAt:  time.Unix(fields.IssuedAt, 0),
		ExpiresAt: time.Unix(fields.ExpiresAt, 0),
	}
	if fields.RevokedAt != 0 {
		revokedAt := time.Unix(fields.RevokedAt, 0)
		record.RevokedAt = &revokedAt
	}
	return record, nil
}

func (s *RedisStore) Redeem(ctx context.Context, codeID, clientID string, expiresAt time.Time) error {
	ok, err := s.rdb.SetNX(ctx, codeKeyPrefix+codeID, clientID, s.ttl(expiresAt)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to redeem code: %w", err)
	}
	if !ok {
		return ErrAlreadyRedeemed
	}
	return nil
}

// Ping checks connectivity, used at startup
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
