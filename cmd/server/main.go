package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/notify"
	"github.com/charlesng35/authcore/internal/otp"
	"github.com/charlesng35/authcore/internal/repository"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("authcore", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	_, otpSvc, err := buildServices(cfg, db)
	if err != nil {
		return err
	}

	cleaner, err := maintenance.NewCleaner(otpSvc,
		maintenance.WithSweepSchedule(cfg.Auth.OTP.CleanupSchedule))
	if err != nil {
		return fmt.Errorf("initialise maintenance: %w", err)
	}
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	log.Info("authcore running", zap.String("driver", cfg.Database.Driver))

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// buildServices wires the full service graph. The auth service is the surface
// an embedding process consumes; the otp service is returned separately so the
// maintenance scheduler can drive its expiry sweep.
func buildServices(cfg *app.Config, db *gorm.DB) (*services.AuthService, *otp.Service, error) {
	accounts, err := repository.NewAccountRepository(db)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise account repository: %w", err)
	}
	otps, err := repository.NewOtpRepository(db)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise otp repository: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise mailer: %w", err)
	}
	notifier, err := notify.NewMailNotifier(mailer)
	if err != nil {
		return nil, nil, fmt.Errorf("initialise notifier: %w", err)
	}

	otpSvc, err := otp.NewService(otps, notifier,
		otp.WithTTL(cfg.Auth.OTP.TTL),
		otp.WithResendWindow(cfg.Auth.OTP.ResendWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("initialise otp service: %w", err)
	}

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		Secret:          cfg.Auth.JWT.Secret,
		Issuer:          cfg.Auth.JWT.Issuer,
		AccessTokenTTL:  cfg.Auth.JWT.AccessTTL,
		RefreshTokenTTL: cfg.Auth.JWT.RefreshTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise token service: %w", err)
	}

	svc, err := services.NewAuthService(accounts, otpSvc, tokens,
		services.WithHashCost(cfg.Auth.HashCost))
	if err != nil {
		return nil, nil, fmt.Errorf("initialise auth service: %w", err)
	}
	return svc, otpSvc, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		Options:  cfg.Database.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("obtain database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
