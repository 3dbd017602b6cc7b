package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "stockflow/internal/core/context"
)

var issuedAt = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, secret string) *JWTService {
	t.Helper()
	svc, err := NewJWTService(DefaultJWTConfig(secret))
	require.NoError(t, err)
	return svc.WithClock(func() time.Time { return issuedAt })
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(DefaultJWTConfig(""))
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService(t, "s3cret")

	issued, err := svc.Issue(appctx.Operator{
		Subject: "clerk-7",
		Name:    "Store Clerk",
		Roles:   []string{RoleWrite, "reports", RoleWrite},
	})
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(15*time.Minute), issued.ExpiresAt)
	assert.NotEmpty(t, issued.ID)

	op, err := svc.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "clerk-7", op.Subject)
	assert.Equal(t, "Store Clerk", op.Name)
	assert.Equal(t, []string{"reports", RoleWrite}, op.Roles)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issued, err := newService(t, "one").Issue(appctx.Operator{Subject: "x"})
	require.NoError(t, err)

	_, err = newService(t, "two").ValidateToken(issued.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateToken_Expiry(t *testing.T) {
	svc := newService(t, "s3cret")
	issued, err := svc.Issue(appctx.Operator{Subject: "x"})
	require.NoError(t, err)

	// Inside the leeway the token still passes.
	svc.WithClock(func() time.Time { return issued.ExpiresAt.Add(20 * time.Second) })
	_, err = svc.ValidateToken(issued.Token)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return issued.ExpiresAt.Add(time.Minute) })
	_, err = svc.ValidateToken(issued.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateToken_RejectsOtherAlgorithm(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "stockflow",
		Subject:   "x",
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = newService(t, "s3cret").ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestValidateToken_RejectsMissingSubject(t *testing.T) {
	svc := newService(t, "s3cret")
	issued, err := svc.Issue(appctx.Operator{})
	require.NoError(t, err)

	_, err = svc.ValidateToken(issued.Token)
	assert.Error(t, err)
}

func TestValidateToken_RejectsOtherIssuer(t *testing.T) {
	cfg := DefaultJWTConfig("s3cret")
	cfg.Issuer = "someone-else"
	other, err := NewJWTService(cfg)
	require.NoError(t, err)
	issued, err := other.WithClock(func() time.Time { return issuedAt }).Issue(appctx.Operator{Subject: "x"})
	require.NoError(t, err)

	_, err = newService(t, "s3cret").ValidateToken(issued.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}
