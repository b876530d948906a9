package token

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/tenantry/internal/clock"
	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{Auth: config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTIssuer:     "tenantry",
		JWTExpiration: time.Hour,
	}}
}

func newTestIssuer(t *testing.T) (*Issuer, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := NewIssuer(testConfig(), clk)
	require.NoError(t, err)
	return issuer, clk
}

func TestIssueAndVerify(t *testing.T) {
	issuer, clk := newTestIssuer(t)

	raw, expiresAt, err := issuer.Issue(snowflake.ID(42), "a@x.com", "7")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expiresAt)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "7", claims.OrganizationID)
	assert.Equal(t, "tenantry", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), userID)
	orgID, err := claims.OrgID()
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(7), orgID)
}

func TestVerifyWithoutOrganization(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	raw, _, err := issuer.Issue(snowflake.ID(42), "a@x.com", "")
	require.NoError(t, err)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	orgID, err := claims.OrgID()
	require.NoError(t, err)
	assert.Zero(t, orgID)
}

func TestVerifyExpired(t *testing.T) {
	issuer, clk := newTestIssuer(t)

	raw, _, err := issuer.Issue(snowflake.ID(1), "a@x.com", "")
	require.NoError(t, err)

	clk.Advance(time.Hour + time.Second)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	raw, _, err := issuer.Issue(snowflake.ID(1), "a@x.com", "")
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	forged, _, err := issuer.Issue(snowflake.ID(2), "b@x.com", "")
	require.NoError(t, err)
	mixed := strings.Join([]string{strings.Split(forged, ".")[0], strings.Split(forged, ".")[1], parts[2]}, ".")

	_, err = issuer.Verify(mixed)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = issuer.Verify("")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = issuer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsOtherSecretAndIssuer(t *testing.T) {
	issuer, clk := newTestIssuer(t)

	cfg := testConfig()
	cfg.Auth.JWTSecret = "other-secret"
	other, err := NewIssuer(cfg, clk)
	require.NoError(t, err)
	raw, _, err := other.Issue(snowflake.ID(1), "a@x.com", "")
	require.NoError(t, err)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalid)

	cfg = testConfig()
	cfg.Auth.JWTIssuer = "someone-else"
	foreign, err := NewIssuer(cfg, clk)
	require.NoError(t, err)
	raw, _, err = foreign.Issue(snowflake.ID(1), "a@x.com", "")
	require.NoError(t, err)
	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	issuer, clk := newTestIssuer(t)

	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "tenantry",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewIssuerValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = " "
	_, err := NewIssuer(cfg, clock.SystemClock{})
	assert.ErrorIs(t, err, config.ErrMissingJWTSecret)

	cfg = testConfig()
	cfg.Auth.JWTExpiration = 0
	_, err = NewIssuer(cfg, clock.SystemClock{})
	assert.ErrorIs(t, err, config.ErrInvalidJWTExpiration)
}
