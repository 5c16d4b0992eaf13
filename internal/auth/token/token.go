// Package token issues and verifies stateless session tokens.
package token

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"go.uber.org/zap"
)

const DefaultTTL = 7 * 24 * time.Hour

// Claims binds a token to a user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(secret []byte, issuer string, ttl time.Duration, clk clock.Clock) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, clock: clk}
}

// Provide builds the issuer from config. Production requires AUTH_JWT_SECRET;
// elsewhere a random per-process secret is used.
func Provide(cfg config.Config, log *zap.Logger) (*Issuer, error) {
	secret := []byte(strings.TrimSpace(cfg.AuthJWTSecret))
	if len(secret) == 0 {
		if cfg.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn("AUTH_JWT_SECRET not set, tokens will not survive a restart")
	}
	return NewIssuer(secret, cfg.AppName, cfg.AuthTokenTTL, clock.New()), nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(userID snowflake.ID) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID.String(),
	})

	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify returns the bound user id. Every failure collapses to ErrInvalidToken.
func (i *Issuer) Verify(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, authdomain.ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return 0, authdomain.ErrInvalidToken
	}

	userID, err := snowflake.ParseString(claims.UserID)
	if err != nil || userID == 0 || claims.Subject != claims.UserID {
		return 0, authdomain.ErrInvalidToken
	}
	return userID, nil
}
