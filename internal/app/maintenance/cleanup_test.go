package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/notify"
	"github.com/charlesng35/authcore/internal/otp"
	"github.com/charlesng35/authcore/internal/repository"
	"github.com/charlesng35/authcore/pkg/mail"
)

func newOtpService(t *testing.T, db *gorm.DB, now time.Time) *otp.Service {
	t.Helper()

	repo, err := repository.NewOtpRepository(db)
	require.NoError(t, err)

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{Enabled: false})
	require.NoError(t, err)
	notifier, err := notify.NewMailNotifier(mailer)
	require.NoError(t, err)

	svc, err := otp.NewService(repo, notifier, otp.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return svc
}

func seedCodes(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()

	expired := models.OtpCode{
		Email:     "expired@example.com",
		Purpose:   models.PurposeEmailVerification,
		Code:      "111111",
		ExpiresAt: now.Add(-time.Hour),
	}
	active := models.OtpCode{
		Email:     "active@example.com",
		Purpose:   models.PurposeEmailVerification,
		Code:      "222222",
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&active).Error)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	seedCodes(t, db, now)

	cleaner, err := NewCleaner(newOtpService(t, db, now))
	require.NoError(t, err)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.OtpCode{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	var remaining models.OtpCode
	require.NoError(t, db.Take(&remaining).Error)
	require.Equal(t, "active@example.com", remaining.Email)
}

func TestCleanerStartSchedulesSweep(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)

	seedCodes(t, db, now)

	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner, err := NewCleaner(newOtpService(t, db, now),
		WithCron(c),
		WithSweepSchedule("@every 10ms"),
	)
	require.NoError(t, err)

	require.NoError(t, cleaner.Start())
	defer func() { <-cleaner.Stop().Done() }()

	require.Eventually(t, func() bool {
		var count int64
		if err := db.Model(&models.OtpCode{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewCleanerRequiresService(t *testing.T) {
	_, err := NewCleaner(nil)
	require.Error(t, err)
}
