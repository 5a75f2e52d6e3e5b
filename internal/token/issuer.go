// Package token issues and verifies the gateway's session credentials.
//
// Sessions are stateless: an access token carries the identity claims the
// front end needs, a refresh token carries only the user ID. Neither is
// stored server-side; revocation is a separate concern handled elsewhere.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/codemurf/auth-gateway/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// Audiences distinguish the two token kinds. A refresh token presented as a
// bearer credential fails audience validation and vice versa.
const (
	accessAudience  = "codemurf"
	refreshAudience = "codemurf-refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the credential pair handed to the front end.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Issuer signs and verifies session tokens with a process-wide HS256 secret.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer from config. The secret is mandatory; config
// validation rejects empty or placeholder secrets before this runs, but the
// check is repeated here so the issuer is safe to construct directly.
func NewIssuer(cfg *config.JWTConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// IssueSession mints an access/refresh pair for the given user. The refresh
// token's claim set is a strict subset of the access token's: it drops email
// and role so a leaked refresh token reveals nothing but the user ID.
func (i *Issuer) IssueSession(user *account.User) (*Session, error) {
	now := i.now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{accessAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		Email: user.Email,
		Role:  string(user.Role),
	})
	accessToken, err := access.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   user.ID,
		Audience:  jwt.ClaimStrings{refreshAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
	})
	refreshToken, err := refresh.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Session{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (i *Issuer) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := i.parse(raw, &claims, accessAudience); err != nil {
		return nil, err
	}
	return &claims, nil
}

// VerifyRefresh validates a refresh token and returns the user ID.
func (i *Issuer) VerifyRefresh(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := i.parse(raw, &claims, refreshAudience); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (i *Issuer) parse(raw string, claims jwt.Claims, audience string) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
