package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/otp"
	"github.com/charlesng35/authcore/internal/repository"
	"github.com/charlesng35/authcore/pkg/crypto"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// RegisterInput describes the fields accepted during registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     string
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithHashCost overrides the bcrypt cost used for password hashing.
func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) {
		if cost > 0 {
			s.hashCost = cost
		}
	}
}

// AuthService composes account storage, the OTP lifecycle, and token
// issuance into the register / verify / resend / login / refresh flows.
// Accounts move Unregistered -> PendingVerification -> Verified; tokens are
// only ever issued for verified accounts.
type AuthService struct {
	accounts repository.AccountRepository
	otps     *otp.Service
	tokens   *auth.TokenService
	hashCost int
	log      *zap.Logger
}

// NewAuthService constructs the orchestrator with its collaborators.
func NewAuthService(accounts repository.AccountRepository, otps *otp.Service, tokens *auth.TokenService, opts ...AuthOption) (*AuthService, error) {
	if accounts == nil {
		return nil, errors.New("auth service: account repository is required")
	}
	if otps == nil {
		return nil, errors.New("auth service: otp service is required")
	}
	if tokens == nil {
		return nil, errors.New("auth service: token service is required")
	}

	service := &AuthService{
		accounts: accounts,
		otps:     otps,
		tokens:   tokens,
		hashCost: crypto.DefaultHashCost,
		log:      logger.WithModule("auth"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Register creates an unverified account and dispatches a verification code.
// A duplicate email fails with ErrDuplicateAccount regardless of the existing
// account's verification state; the uniqueness check rides on the storage
// index so concurrent registrations cannot both win.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.Account, error) {
	email := strings.TrimSpace(input.Email)

	role := input.Role
	if role == "" {
		role = models.RoleUser
	}

	hash, err := crypto.HashPassword(input.Password, s.hashCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "hash password")
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Phone:        strings.TrimSpace(input.Phone),
		Role:         role,
		Verified:     false,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
			return nil, apperrors.ErrDuplicateAccount
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, "create account")
	}

	if err := s.otps.GenerateAndSend(ctx, email, models.PurposeEmailVerification, account.Name); err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, apperrors.ErrDeliveryFailed.WithInternal(err)
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	s.log.Info("account registered", zap.String("account_id", account.ID))
	return account, nil
}

// VerifyEmail consumes a verification code and promotes the account to
// Verified, returning its first token pair.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.Account, TokenPair, error) {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, TokenPair{}, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, TokenPair{}, apperrors.Wrap(err, "find account")
	}

	if account.Verified {
		return nil, TokenPair{}, apperrors.ErrAlreadyVerified
	}

	ok, err := s.otps.Verify(ctx, account.Email, code, models.PurposeEmailVerification)
	if err != nil {
		return nil, TokenPair{}, apperrors.Wrap(err, "verify code")
	}
	if !ok {
		return nil, TokenPair{}, apperrors.ErrInvalidOTP
	}

	if err := s.accounts.SetVerified(ctx, account.ID); err != nil {
		return nil, TokenPair{}, apperrors.Wrap(err, "mark verified")
	}
	account.Verified = true

	pair, err := s.issuePair(account)
	if err != nil {
		return nil, TokenPair{}, err
	}

	s.log.Info("email verified", zap.String("account_id", account.ID))
	return account, pair, nil
}

// ResendVerification issues a fresh verification code, subject to the OTP
// service's resend throttle.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return apperrors.Wrap(err, "find account")
	}

	if account.Verified {
		return apperrors.ErrAlreadyVerified
	}

	err = s.otps.Resend(ctx, account.Email, models.PurposeEmailVerification, account.Name)
	if errors.Is(err, otp.ErrThrottled) {
		return apperrors.ErrThrottled
	}
	if err != nil {
		return apperrors.ErrDeliveryFailed.WithInternal(err)
	}
	return nil
}

// Login checks credentials and issues a fresh token pair. A missing account
// and a wrong password collapse into the same ErrInvalidCredentials so a
// caller cannot discover which emails are registered. Login never mutates
// the account.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Account, TokenPair, error) {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, TokenPair{}, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, TokenPair{}, apperrors.Wrap(err, "find account")
	}

	if !crypto.VerifyPassword(account.PasswordHash, password) {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, TokenPair{}, apperrors.ErrInvalidCredentials
	}

	if !account.Verified {
		metrics.LoginAttempts.WithLabelValues("unverified").Inc()
		return nil, TokenPair{}, apperrors.ErrNotVerified
	}

	pair, err := s.issuePair(account)
	if err != nil {
		return nil, TokenPair{}, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return account, pair, nil
}

// Refresh validates a refresh token and issues a new access token. The
// refresh token itself is not rotated. Every failure (bad signature, missing
// account, unverified account) surfaces as the single ErrInvalidToken so the
// refresh endpoint leaks nothing about account state.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", apperrors.ErrInvalidToken
	}

	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		return "", apperrors.ErrInvalidToken
	}
	if !account.Verified {
		return "", apperrors.ErrInvalidToken
	}

	access, err := s.tokens.IssueAccessToken(account.ID, account.Role)
	if err != nil {
		return "", apperrors.Wrap(err, "issue access token")
	}
	return access, nil
}

// RequestPasswordReset dispatches a reset code to a registered address. An
// unknown address returns success without sending anything, so the endpoint
// cannot be used to enumerate accounts. Repeated requests inside the resend
// window are throttled like verification resends.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, "find account")
	}

	err = s.otps.Resend(ctx, account.Email, models.PurposePasswordReset, account.Name)
	if errors.Is(err, otp.ErrThrottled) {
		return apperrors.ErrThrottled
	}
	if err != nil {
		return apperrors.ErrDeliveryFailed.WithInternal(err)
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the account's password
// hash. No tokens are issued; the caller logs in afterwards.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrAccountNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return apperrors.Wrap(err, "find account")
	}

	ok, err := s.otps.Verify(ctx, account.Email, code, models.PurposePasswordReset)
	if err != nil {
		return apperrors.Wrap(err, "verify code")
	}
	if !ok {
		return apperrors.ErrInvalidOTP
	}

	hash, err := crypto.HashPassword(newPassword, s.hashCost)
	if err != nil {
		return apperrors.Wrap(err, "hash password")
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return apperrors.Wrap(err, "update password")
	}

	s.log.Info("password reset", zap.String("account_id", account.ID))
	return nil
}

func (s *AuthService) issuePair(account *models.Account) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account.ID, account.Role)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(err, "issue access token")
	}
	refresh, err := s.tokens.IssueRefreshToken(account.ID, account.Role)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(err, "issue refresh token")
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
