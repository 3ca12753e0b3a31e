package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registrations counts account registrations by result (success|duplicate|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_registrations_total",
			Help: "Total number of account registrations",
		},
		[]string{"result"},
	)

	// LoginAttempts records login attempts by result (success|invalid|unverified).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// OtpIssued counts one-time codes generated and dispatched, by purpose.
	OtpIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"purpose"},
	)

	// OtpVerifications counts verification attempts by outcome (success|failure).
	OtpVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_otp_verifications_total",
			Help: "Total number of one-time code verification attempts",
		},
		[]string{"outcome"},
	)

	// OtpCleanupDeleted tracks records removed by the expiry sweep.
	OtpCleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_otp_cleanup_deleted_total",
			Help: "Total number of expired one-time codes removed by cleanup",
		},
	)

	// TokensIssued counts signed tokens by type (access|refresh).
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_tokens_issued_total",
			Help: "Total number of signed tokens issued",
		},
		[]string{"type"},
	)
)
