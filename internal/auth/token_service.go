package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/authcore/pkg/metrics"
)

// Default token lifetimes applied when configuration leaves them unset.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Token use claim values. A refresh token presented where an access token is
// expected (or vice versa) fails validation.
const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// ErrInvalidToken is returned for every validation failure: bad signature,
// malformed payload, expiry, wrong token use, or issuer mismatch. The single
// sentinel is deliberate; callers never learn which check failed.
var ErrInvalidToken = errors.New("token: invalid")

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// Claims carries the identity embedded in issued tokens.
type Claims struct {
	AccountID string `json:"uid"`
	Role      string `json:"role"`
	TokenUse  string `json:"use"`
	jwt.RegisteredClaims
}

// TokenService signs and validates access and refresh tokens.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService from the provided configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: secret must be provided")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}

	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}, nil
}

// IssueAccessToken signs a short-lived token for the given account.
func (s *TokenService) IssueAccessToken(accountID, role string) (string, error) {
	return s.issue(accountID, role, tokenUseAccess, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token for the given account.
func (s *TokenService) IssueRefreshToken(accountID, role string) (string, error) {
	return s.issue(accountID, role, tokenUseRefresh, s.refreshTTL)
}

// ValidateAccessToken parses and validates an access token.
func (s *TokenService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, tokenUseAccess)
}

// ValidateRefreshToken parses and validates a refresh token.
func (s *TokenService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, tokenUseRefresh)
}

func (s *TokenService) issue(accountID, role, use string, ttl time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("token: account id is required")
	}

	now := s.now()
	claims := &Claims{
		AccountID: accountID,
		Role:      role,
		TokenUse:  use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(use).Inc()
	return signed, nil
}

func (s *TokenService) validate(tokenString, use string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims.TokenUse != use {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}
