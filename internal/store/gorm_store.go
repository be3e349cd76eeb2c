package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franciscosanchezn/authzilla/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps token records and code redemptions in the application database
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Record(ctx context.Context, record *models.TokenRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

func (s *GormStore) Revoke(ctx context.Context, record *models.TokenRecord) error {
	now := s.now()
	row := *record
	row.RevokedAt = &now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "jti"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"revoked_at": gorm.Expr("COALESCE(revoked_at, ?)", now),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *GormStore) RevokeOnce(ctx context.Context, record *models.TokenRecord) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TokenRecord{}).
			Where("jti = ? AND revoked_at IS NULL", record.JTI).
			Updates(map[string]interface{}{"revoked_at": now, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		// either revoked already or never recorded
		row := *record
		row.RevokedAt = &now
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyRevoked
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyRevoked) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	record, err := s.Get(ctx, jti)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.RevokedAt != nil, nil
}

func (s *GormStore) Get(ctx context.Context, jti string) (*models.TokenRecord, error) {
	var record models.TokenRecord
	err := s.db.WithContext(ctx).Where("jti = ?", jti).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &record, nil
}

func (s *GormStore) Redeem(ctx context.Context, codeID, clientID string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CodeRedemption{
		CodeID:     codeID,
		ClientID:   clientID,
		ExpiresAt:  expiresAt,
		RedeemedAt: s.now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to redeem code: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyRedeemed
	}
	return nil
}

// Purge deletes redemptions and token records that expired more than
// expiryGrace ago. Both are rejected by their expiry alone once purged.
func (s *GormStore) Purge(ctx context.Context) (int64, error) {
	now := s.now().Add(-expiryGrace)
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expires_at < ?", now).Delete(&models.CodeRedemption{})
		if res.Error != nil {
			return res.Error
		}
		purged += res.RowsAffected
		res = tx.Where("expires_at < ?", now).Delete(&models.TokenRecord{})
		if res.Error != nil {
			return res.Error
		}
		purged += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	return purged, nil
}
