package models

import "time"

// OTP purposes. Purpose scopes both uniqueness and lookup: codes issued for
// one purpose can never satisfy a verification for another.
const (
	PurposeEmailVerification = "EMAIL_VERIFICATION"
	PurposePasswordReset     = "PASSWORD_RESET"
)

// OtpCode is a single-use, time-limited numeric code bound to an email
// address and a purpose. At most one unused, unexpired record may exist per
// (email, purpose); the OTP service enforces this by superseding prior unused
// records when a new code is issued. Only Used ever changes after creation.
type OtpCode struct {
	BaseModel

	Email     string    `gorm:"not null;index:idx_otp_email_purpose" json:"email"`
	Purpose   string    `gorm:"not null;index:idx_otp_email_purpose" json:"purpose"`
	Code      string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
}
