package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/notify"
	"github.com/charlesng35/authcore/internal/repository"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	// DefaultTTL is the fallback lifetime of an issued code.
	DefaultTTL = 5 * time.Minute
	// DefaultResendWindow is the minimum elapsed time after a code's
	// creation before a resend for the same (email, purpose) is permitted.
	DefaultResendWindow = time.Minute

	codeMin  = 100000
	codeSpan = 900000
)

var (
	// ErrThrottled signals that a code was issued too recently to resend.
	ErrThrottled = errors.New("otp: resend throttled")
	// ErrUnknownPurpose marks a purpose the notifier cannot deliver for.
	ErrUnknownPurpose = errors.New("otp: unknown purpose")
)

// Option customises the Service.
type Option func(*Service)

// WithTTL overrides the code lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithResendWindow overrides the resend throttle window.
func WithResendWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resendWindow = d
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCodeGenerator injects a custom code source, primarily for tests.
func WithCodeGenerator(generate func() (string, error)) Option {
	return func(s *Service) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// Service owns the one-time code lifecycle: generation, delivery,
// verification, throttled resend, and expiry cleanup. All shared state lives
// in the repository; a Service is safe for concurrent use.
type Service struct {
	repo         repository.OtpRepository
	notifier     notify.Notifier
	ttl          time.Duration
	resendWindow time.Duration
	now          func() time.Time
	generate     func() (string, error)
	log          *zap.Logger
}

// NewService constructs an OTP service with the provided collaborators.
func NewService(repo repository.OtpRepository, notifier notify.Notifier, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("otp service: repository is required")
	}
	if notifier == nil {
		return nil, errors.New("otp service: notifier is required")
	}

	service := &Service{
		repo:         repo,
		notifier:     notifier,
		ttl:          DefaultTTL,
		resendWindow: DefaultResendWindow,
		now:          time.Now,
		generate:     GenerateCode,
		log:          logger.WithModule("otp"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// GenerateCode produces a random 6-digit numeric code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// GenerateAndSend issues a fresh code for (email, purpose), superseding any
// unused code already outstanding, and dispatches it through the notifier.
// When delivery fails the just-created record is deleted again: a code must
// never sit active in storage after the user had no chance to receive it. The
// compensating delete is best-effort and never masks the delivery error.
func (s *Service) GenerateAndSend(ctx context.Context, email, purpose, name string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("otp service: email is required")
	}
	if purpose != models.PurposeEmailVerification && purpose != models.PurposePasswordReset {
		return fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}

	code, err := s.generate()
	if err != nil {
		return err
	}

	now := s.now()
	record := &models.OtpCode{
		BaseModel: models.BaseModel{CreatedAt: now, UpdatedAt: now},
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.repo.Replace(ctx, record); err != nil {
		return err
	}

	if err := s.dispatch(ctx, email, purpose, code, name); err != nil {
		if delErr := s.repo.DeleteByCode(ctx, email, purpose, code); delErr != nil {
			s.log.Warn("compensating delete failed",
				zap.String("email", email),
				zap.String("purpose", purpose),
				zap.Error(delErr))
		}
		return err
	}

	metrics.OtpIssued.WithLabelValues(purpose).Inc()
	return nil
}

// Verify consumes the code matching (email, code, purpose) if it is unused
// and unexpired. It reports false for every miss without distinguishing a
// wrong code from an expired or already-used one. Consumption is a single
// conditional write, so of N concurrent calls with the same code at most one
// observes true.
func (s *Service) Verify(ctx context.Context, email, code, purpose string) (bool, error) {
	now := s.now()

	record, err := s.repo.FindActive(ctx, strings.TrimSpace(email), code, purpose, now)
	if errors.Is(err, repository.ErrOtpNotFound) {
		metrics.OtpVerifications.WithLabelValues("failure").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := s.repo.ConsumeByID(ctx, record.ID, now)
	if err != nil {
		return false, err
	}

	if ok {
		metrics.OtpVerifications.WithLabelValues("success").Inc()
	} else {
		metrics.OtpVerifications.WithLabelValues("failure").Inc()
	}
	return ok, nil
}

// Resend issues a new code unless one was created within the throttle window.
// The window applies regardless of whether the earlier code was used, so a
// caller cannot bypass the throttle by burning codes.
func (s *Service) Resend(ctx context.Context, email, purpose, name string) error {
	email = strings.TrimSpace(email)
	now := s.now()

	_, err := s.repo.FindRecent(ctx, email, purpose, now.Add(-s.resendWindow))
	if err == nil {
		return ErrThrottled
	}
	if !errors.Is(err, repository.ErrOtpNotFound) {
		return err
	}

	return s.GenerateAndSend(ctx, email, purpose, name)
}

// CleanupExpired removes every record past its expiry, used or not. Expired
// records can never satisfy a verification, so the sweep needs no
// coordination with in-flight operations.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.OtpCleanupDeleted.Add(float64(deleted))
		s.log.Debug("expired codes removed", zap.Int64("count", deleted))
	}
	return deleted, nil
}

func (s *Service) dispatch(ctx context.Context, email, purpose, code, name string) error {
	switch purpose {
	case models.PurposeEmailVerification:
		return s.notifier.SendVerificationCode(ctx, email, code, name)
	case models.PurposePasswordReset:
		return s.notifier.SendPasswordResetCode(ctx, email, code, name)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
}
