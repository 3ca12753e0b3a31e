package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/authcore/pkg/mail"
)

// Notifier delivers one-time codes to an address. Implementations must treat
// a returned error as "the user will never see this code" so callers can
// compensate.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code, name string) error
	SendPasswordResetCode(ctx context.Context, email, code, name string) error
}

type mailNotifier struct {
	mailer mail.Mailer
}

// NewMailNotifier wraps a Mailer as a Notifier.
func NewMailNotifier(mailer mail.Mailer) (Notifier, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}
	return &mailNotifier{mailer: mailer}, nil
}

func (n *mailNotifier) SendVerificationCode(ctx context.Context, email, code, name string) error {
	msg := mail.Message{
		To:      email,
		Subject: "Verify your email address",
		Body:    verificationBody(name, code),
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send verification code: %w", err)
	}
	return nil
}

func (n *mailNotifier) SendPasswordResetCode(ctx context.Context, email, code, name string) error {
	msg := mail.Message{
		To:      email,
		Subject: "Reset your password",
		Body:    resetBody(name, code),
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send password reset code: %w", err)
	}
	return nil
}

func verificationBody(name, code string) string {
	return fmt.Sprintf("Hi %s,\n\nYour email verification code is %s.\n\nThe code expires shortly. If you did not create an account, you can ignore this message.\n", greeting(name), code)
}

func resetBody(name, code string) string {
	return fmt.Sprintf("Hi %s,\n\nYour password reset code is %s.\n\nThe code expires shortly. If you did not request a reset, you can ignore this message.\n", greeting(name), code)
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return name
}
