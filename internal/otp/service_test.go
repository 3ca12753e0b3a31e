package otp

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/repository"
)

type fakeNotifier struct {
	verificationCodes []string
	resetCodes        []string
	err               error
}

func (n *fakeNotifier) SendVerificationCode(ctx context.Context, email, code, name string) error {
	if n.err != nil {
		return n.err
	}
	n.verificationCodes = append(n.verificationCodes, code)
	return nil
}

func (n *fakeNotifier) SendPasswordResetCode(ctx context.Context, email, code, name string) error {
	if n.err != nil {
		return n.err
	}
	n.resetCodes = append(n.resetCodes, code)
	return nil
}

type fixture struct {
	svc      *Service
	repo     repository.OtpRepository
	notifier *fakeNotifier
	db       *gorm.DB
	current  *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	repo, err := repository.NewOtpRepository(db)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	current := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	all := append([]Option{WithClock(func() time.Time { return current })}, opts...)
	svc, err := NewService(repo, notifier, all...)
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, notifier: notifier, db: db, current: &current}
}

func (f *fixture) advance(d time.Duration) {
	*f.current = f.current.Add(d)
}

func TestGenerateCodeFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.True(t, pattern.MatchString(code), "code %q is not 6 digits", code)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)
	}
}

func TestGenerateAndSendCreatesSingleActiveRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))

	var records []models.OtpCode
	require.NoError(t, f.db.Find(&records).Error)
	require.Len(t, records, 1)
	require.False(t, records[0].Used)
	require.True(t, records[0].ExpiresAt.After(*f.current))
	require.Regexp(t, `^\d{6}$`, records[0].Code)

	require.Len(t, f.notifier.verificationCodes, 1)
	require.Equal(t, records[0].Code, f.notifier.verificationCodes[0])
}

func TestGenerateAndSendSupersedesPriorCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	first := f.notifier.verificationCodes[0]

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	second := f.notifier.verificationCodes[1]

	var count int64
	require.NoError(t, f.db.Model(&models.OtpCode{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	ok, err := f.svc.Verify(ctx, "a@x.com", first, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.False(t, ok, "superseded code must no longer verify")

	ok, err = f.svc.Verify(ctx, "a@x.com", second, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGenerateAndSendRejectsUnknownPurpose(t *testing.T) {
	f := newFixture(t)

	err := f.svc.GenerateAndSend(context.Background(), "a@x.com", "SOMETHING_ELSE", "Alice")
	require.ErrorIs(t, err, ErrUnknownPurpose)

	var count int64
	require.NoError(t, f.db.Model(&models.OtpCode{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGenerateAndSendCompensatesFailedDelivery(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	err := f.svc.GenerateAndSend(context.Background(), "a@x.com", models.PurposeEmailVerification, "Alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "smtp down")

	// The undeliverable record must not survive.
	var count int64
	require.NoError(t, f.db.Model(&models.OtpCode{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestVerifyConsumesCodeExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	code := f.notifier.verificationCodes[0]

	ok, err := f.svc.Verify(ctx, "a@x.com", code, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.Verify(ctx, "a@x.com", code, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyWrongCode(t *testing.T) {
	f := newFixture(t, WithCodeGenerator(func() (string, error) { return "123456", nil }))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))

	ok, err := f.svc.Verify(ctx, "a@x.com", "000000", models.PurposeEmailVerification)
	require.NoError(t, err)
	require.False(t, ok)

	// Purpose scopes the lookup: the same code under another purpose misses.
	ok, err = f.svc.Verify(ctx, "a@x.com", "123456", models.PurposePasswordReset)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyExpiredCode(t *testing.T) {
	f := newFixture(t, WithTTL(5*time.Minute))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	code := f.notifier.verificationCodes[0]

	f.advance(6 * time.Minute)

	ok, err := f.svc.Verify(ctx, "a@x.com", code, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResendThrottledInsideWindow(t *testing.T) {
	f := newFixture(t, WithResendWindow(time.Minute))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))

	f.advance(10 * time.Second)

	err := f.svc.Resend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice")
	require.ErrorIs(t, err, ErrThrottled)
	require.Len(t, f.notifier.verificationCodes, 1)
}

func TestResendSucceedsAfterWindowAndInvalidatesPriorCode(t *testing.T) {
	f := newFixture(t, WithResendWindow(time.Minute), WithTTL(10*time.Minute))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	first := f.notifier.verificationCodes[0]

	f.advance(61 * time.Second)

	require.NoError(t, f.svc.Resend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	require.Len(t, f.notifier.verificationCodes, 2)

	ok, err := f.svc.Verify(ctx, "a@x.com", first, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.svc.Verify(ctx, "a@x.com", f.notifier.verificationCodes[1], models.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResendWithoutPriorCodeSends(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Resend(context.Background(), "new@x.com", models.PurposeEmailVerification, "New"))
	require.Len(t, f.notifier.verificationCodes, 1)
}

func TestResendThrottleIgnoresUsedFlag(t *testing.T) {
	f := newFixture(t, WithResendWindow(time.Minute))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice"))
	code := f.notifier.verificationCodes[0]

	ok, err := f.svc.Verify(ctx, "a@x.com", code, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, ok)

	// Burning the code does not reopen the window.
	err = f.svc.Resend(ctx, "a@x.com", models.PurposeEmailVerification, "Alice")
	require.ErrorIs(t, err, ErrThrottled)
}

func TestCleanupExpiredSweepsOnlyExpired(t *testing.T) {
	f := newFixture(t, WithTTL(5*time.Minute))
	ctx := context.Background()

	require.NoError(t, f.svc.GenerateAndSend(ctx, "old@x.com", models.PurposeEmailVerification, "Old"))
	f.advance(3 * time.Minute)
	require.NoError(t, f.svc.GenerateAndSend(ctx, "fresh@x.com", models.PurposeEmailVerification, "Fresh"))
	freshCode := f.notifier.verificationCodes[1]

	f.advance(3 * time.Minute) // old is now past expiry, fresh is not

	deleted, err := f.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	ok, err := f.svc.Verify(ctx, "fresh@x.com", freshCode, models.PurposeEmailVerification)
	require.NoError(t, err)
	require.True(t, ok, "cleanup must not remove a still-valid code")
}
