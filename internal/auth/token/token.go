// Package token signs and verifies HS256 bearer tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Claims is the signed claim set. OrganizationID is empty for users without
// a membership.
type Claims struct {
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (snowflake.ID, error) {
	return snowflake.ParseString(c.Subject)
}

// OrgID parses the organization claim; zero when absent.
func (c *Claims) OrgID() (snowflake.ID, error) {
	if c.OrganizationID == "" {
		return 0, nil
	}
	return snowflake.ParseString(c.OrganizationID)
}

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(cfg config.Config, clk clock.Clock) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if secret == "" {
		return nil, config.ErrMissingJWTSecret
	}
	if cfg.Auth.JWTExpiration <= 0 {
		return nil, config.ErrInvalidJWTExpiration
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: cfg.Auth.JWTIssuer,
		ttl:    cfg.Auth.JWTExpiration,
		clock:  clk,
	}, nil
}

// Issue signs a token for the subject. It returns the token and its expiry.
func (i *Issuer) Issue(userID snowflake.ID, email, organizationID string) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Email:          email,
		OrganizationID: organizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer and expiry.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
