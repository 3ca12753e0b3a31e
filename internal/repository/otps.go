package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// ErrOtpNotFound indicates that no active code matches the lookup.
var ErrOtpNotFound = errors.New("repository: otp not found")

// OtpRepository persists one-time codes. Implementations must provide the two
// atomic conditional writes this core depends on: Replace supersedes prior
// unused codes and creates the new one as a single unit, and ConsumeByID
// marks a code used only if it is still unused and unexpired.
type OtpRepository interface {
	Replace(ctx context.Context, record *models.OtpCode) error
	FindActive(ctx context.Context, email, code, purpose string, now time.Time) (*models.OtpCode, error)
	ConsumeByID(ctx context.Context, id string, now time.Time) (bool, error)
	FindRecent(ctx context.Context, email, purpose string, since time.Time) (*models.OtpCode, error)
	DeleteByCode(ctx context.Context, email, purpose, code string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormOtps struct {
	db *gorm.DB
}

// NewOtpRepository returns a gorm-backed OtpRepository.
func NewOtpRepository(db *gorm.DB) (OtpRepository, error) {
	if db == nil {
		return nil, errors.New("otp repository: db is required")
	}
	return &gormOtps{db: db}, nil
}

// Replace deletes any unused codes for the record's (email, purpose) and
// creates the new record within one transaction, so no window exists in which
// two active codes are observable.
func (r *gormOtps) Replace(ctx context.Context, record *models.OtpCode) error {
	if record == nil {
		return errors.New("otp repository: record is required")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("email = ? AND purpose = ? AND used = ?", record.Email, record.Purpose, false).
			Delete(&models.OtpCode{}).Error; err != nil {
			return fmt.Errorf("supersede unused: %w", err)
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp repository: replace: %w", err)
	}
	return nil
}

func (r *gormOtps) FindActive(ctx context.Context, email, code, purpose string, now time.Time) (*models.OtpCode, error) {
	var record models.OtpCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ? AND purpose = ? AND used = ? AND expires_at >= ?",
			email, code, purpose, false, now).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOtpNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("otp repository: find active: %w", err)
	}
	return &record, nil
}

// ConsumeByID flips Used to true with a single conditional update. The false
// return without error means another caller consumed the code first, or it
// expired between lookup and consume.
func (r *gormOtps) ConsumeByID(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OtpCode{}).
		Where("id = ? AND used = ? AND expires_at >= ?", id, false, now).
		Update("used", true)
	if result.Error != nil {
		return false, fmt.Errorf("otp repository: consume: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindRecent returns any code for (email, purpose) created at or after the
// given instant, regardless of its used flag. Drives the resend throttle.
func (r *gormOtps) FindRecent(ctx context.Context, email, purpose string, since time.Time) (*models.OtpCode, error) {
	var record models.OtpCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND created_at >= ?", email, purpose, since).
		Order("created_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOtpNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("otp repository: find recent: %w", err)
	}
	return &record, nil
}

// DeleteByCode removes a specific code. Used to compensate a failed delivery.
func (r *gormOtps) DeleteByCode(ctx context.Context, email, purpose, code string) error {
	err := r.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND code = ?", email, purpose, code).
		Delete(&models.OtpCode{}).Error
	if err != nil {
		return fmt.Errorf("otp repository: delete by code: %w", err)
	}
	return nil
}

func (r *gormOtps) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.OtpCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("otp repository: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
