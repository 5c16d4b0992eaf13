package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/auth/password"
	"github.com/smallbiznis/pearlsonic/internal/auth/token"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	Tokens *token.Issuer
	GenID  *snowflake.Node
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	tokens *token.Issuer
	genID  *snowflake.Node
	clock  clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		log:    p.Log.Named("auth.service"),
		repo:   p.Repo,
		tokens: p.Tokens,
		genID:  p.GenID,
		clock:  clk,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrInvalidPassword
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	digest, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: digest,
		Credits:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// A concurrent registration can still lose to the unique index.
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		password.VerifyDummy(req.Password)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			password.VerifyDummy(req.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (snowflake.ID, error) {
	return s.tokens.Verify(rawToken)
}

func (s *Service) CurrentUser(ctx context.Context, userID snowflake.ID) (*domain.User, error) {
	if userID == 0 {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByID(ctx, userID)
}

func (s *Service) issue(user *domain.User) (*domain.AuthResult, error) {
	raw, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &domain.AuthResult{
		User:      user,
		Token:     raw,
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 320 || !emailPattern.MatchString(email) {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
