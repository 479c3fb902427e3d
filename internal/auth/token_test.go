package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_jwt_secret"

var testClaims = Claims{
	ID:              "123",
	Email:           "test@example.com",
	Name:            "Test User",
	PhotoProfileURL: "test.jpg",
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestIssuer(t *testing.T, clock *fakeClock) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	for _, secret := range []string{"", "   "} {
		_, err := NewTokenIssuer(secret)
		assert.ErrorIs(t, err, ErrMissingSecret)
	}
}

func TestIssueEmbedsClaimsAndExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(testClaims)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testClaims.ID, claims.ID)
	assert.Equal(t, testClaims.Email, claims.Email)
	assert.Equal(t, testClaims.Name, claims.Name)
	assert.Equal(t, testClaims.PhotoProfileURL, claims.PhotoProfileURL)
	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.IssuedAt.Time.Equal(clock.now))
	assert.Equal(t, DefaultTokenTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestIssueUsesJSONClaimNames(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(testClaims)
	require.NoError(t, err)

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	require.NoError(t, err)
	for _, key := range []string{`"id"`, `"email"`, `"name"`, `"photoProfileUrl"`, `"iat"`, `"exp"`} {
		assert.Contains(t, string(payload), key)
	}
}

func TestIssueIsUniquePerInstant(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	first, err := issuer.Issue(testClaims)
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Second)
	second, err := issuer.Issue(testClaims)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(testClaims)
	require.NoError(t, err)

	clock.now = clock.now.Add(DefaultTokenTTL - time.Second)
	_, err = issuer.Verify(token)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Second)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsSignatureBitFlips(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock)

	token, err := issuer.Issue(testClaims)
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := 0; i < len(signature)*8; i++ {
		mutated := append([]byte(nil), signature...)
		mutated[i/8] ^= 1 << (i % 8)
		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(mutated)

		_, err := issuer.Verify(forged)
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("bit %d: expected ErrInvalidToken, got %v", i, err)
		}
	}
}

func TestVerifyRejectsEncodedSignatureBitFlips(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock)

	for n := 0; n < 50; n++ {
		clock.now = clock.now.Add(time.Second)
		token, err := issuer.Issue(testClaims)
		require.NoError(t, err)
		sigStart := strings.LastIndex(token, ".") + 1

		for pos := sigStart; pos < len(token); pos++ {
			for bit := 0; bit < 8; bit++ {
				forged := []byte(token)
				forged[pos] ^= 1 << bit

				_, err := issuer.Verify(string(forged))
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("token %d, char %d bit %d (%q -> %q): expected ErrInvalidToken, got %v",
						n, pos-sigStart, bit, token[pos], forged[pos], err)
				}
			}
		}
	}
}

func TestVerifyRejectsMalformedAndForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	issuer := newTestIssuer(t, clock)

	other, err := NewTokenIssuer("another_secret", WithClock(clock.Now))
	require.NoError(t, err)
	foreign, err := other.Issue(testClaims)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims)
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":    "",
		"garbage":  "xyz",
		"two-part": "a.b",
		"foreign":  foreign,
		"alg-none": unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestWithTTL(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, WithTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.TTL())

	issuer, err = NewTokenIssuer(testSecret, WithTTL(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())
}
