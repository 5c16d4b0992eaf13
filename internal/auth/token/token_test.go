package token

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/clock"
)

func TestIssueAndVerify(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := NewIssuer([]byte("test-secret"), "pearlsonic", 0, clk)

	userID := snowflake.ID(1234567890)
	raw, expiresAt, err := issuer.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if want := clk.Now().Add(7 * 24 * time.Hour); !expiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, expiresAt)
	}

	got, err := issuer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %d, got %d", userID, got)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := NewIssuer([]byte("test-secret"), "pearlsonic", time.Hour, clk)

	raw, _, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clk.Advance(time.Hour + time.Second)

	if _, err := issuer.Verify(raw); err != authdomain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := NewIssuer([]byte("secret-a"), "pearlsonic", 0, nil)
	other := NewIssuer([]byte("secret-b"), "pearlsonic", 0, nil)

	raw, _, err := other.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(raw); err != authdomain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsMalformedAndUnsigned(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), "pearlsonic", 0, nil)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "42",
	})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	for _, raw := range []string{"", "   ", "not-a-jwt", "a.b.c", noneToken} {
		if _, err := issuer.Verify(raw); err != authdomain.ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}

	valid, _, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := valid[:len(valid)-2] + strings.Repeat("A", 2)
	if tampered != valid {
		if _, err := issuer.Verify(tampered); err != authdomain.ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
		}
	}
}
