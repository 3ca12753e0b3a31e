package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

var (
	// ErrAccountNotFound indicates that no account matches the lookup key.
	ErrAccountNotFound = errors.New("repository: account not found")
	// ErrDuplicateEmail is returned when a create collides with the unique
	// email index. Uniqueness is enforced by the index, not by a prior read,
	// so two concurrent registrations cannot both succeed.
	ErrDuplicateEmail = errors.New("repository: email already registered")
)

// AccountRepository persists identity records.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	SetVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

type gormAccounts struct {
	db *gorm.DB
}

// NewAccountRepository returns a gorm-backed AccountRepository.
func NewAccountRepository(db *gorm.DB) (AccountRepository, error) {
	if db == nil {
		return nil, errors.New("account repository: db is required")
	}
	return &gormAccounts{db: db}, nil
}

func (r *gormAccounts) Create(ctx context.Context, account *models.Account) error {
	if account == nil {
		return errors.New("account repository: account is required")
	}

	err := r.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("account repository: create: %w", err)
	}
	return nil
}

func (r *gormAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", strings.TrimSpace(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account repository: find by email: %w", err)
	}
	return &account, nil
}

func (r *gormAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Take(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account repository: find by id: %w", err)
	}
	return &account, nil
}

func (r *gormAccounts) SetVerified(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("verified", true)
	if result.Error != nil {
		return fmt.Errorf("account repository: set verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *gormAccounts) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return fmt.Errorf("account repository: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
