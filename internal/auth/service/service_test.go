package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/auth/repository"
	"github.com/smallbiznis/pearlsonic/internal/auth/token"
	"github.com/smallbiznis/pearlsonic/pkg/db"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) authdomain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return New(Params{
		Log:    zap.NewNop(),
		Repo:   repository.New(dbConn),
		Tokens: token.NewIssuer([]byte("test-secret"), "pearlsonic", 0, nil),
		GenID:  node,
	})
}

func TestRegisterCreatesUserWithZeroCredits(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.Register(context.Background(), authdomain.RegisterRequest{
		Email:    "  Alice@Example.com ",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.User.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", result.User.Email)
	}
	if result.User.Credits != 0 {
		t.Fatalf("expected 0 credits, got %d", result.User.Credits)
	}
	if result.User.PasswordHash == "secret1" || result.User.PasswordHash == "" {
		t.Fatal("expected hashed password")
	}

	userID, err := svc.Authenticate(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != result.User.ID {
		t.Fatalf("expected token bound to %d, got %d", result.User.ID, userID)
	}
}

func TestRegisterRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Register(context.Background(), authdomain.RegisterRequest{Email: "bob@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(context.Background(), authdomain.RegisterRequest{Email: "BOB@example.com", Password: "secret2"})
	if !errors.Is(err, authdomain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterConcurrentDuplicateOnlyOneWins(t *testing.T) {
	svc := newTestService(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), authdomain.RegisterRequest{Email: "race@example.com", Password: "secret1"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, authdomain.ErrUserExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one registration, got %d", succeeded)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), authdomain.RegisterRequest{Email: "not-an-email", Password: "secret1"})
	if !errors.Is(err, authdomain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	_, err = svc.Register(context.Background(), authdomain.RegisterRequest{Email: "carol@example.com", Password: "12345"})
	if !errors.Is(err, authdomain.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Register(context.Background(), authdomain.RegisterRequest{Email: "dave@example.com", Password: "correct-password"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPassword := svc.Login(context.Background(), authdomain.LoginRequest{Email: "dave@example.com", Password: "wrong-password"})
	_, unknownEmail := svc.Login(context.Background(), authdomain.LoginRequest{Email: "nobody@example.com", Password: "correct-password"})
	if wrongPassword != authdomain.ErrInvalidCredentials || unknownEmail != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected uniform ErrInvalidCredentials, got %v and %v", wrongPassword, unknownEmail)
	}

	result, err := svc.Login(context.Background(), authdomain.LoginRequest{Email: "DAVE@example.com", Password: "correct-password"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected token")
	}
}
