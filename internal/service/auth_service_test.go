package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

func newAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4, // low cost keeps the hash tests fast
	}
	return NewAuthService(cfg, rdb), mr
}

func TestPasswordHashRoundTrip(t *testing.T) {
	svc, _ := newAuthService(t)

	hash, err := svc.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("password stored in plaintext")
	}

	if err := svc.CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := svc.CheckPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	u := &model.User{ID: 7, Role: model.RoleStudent}
	token, err := svc.GenerateToken(ctx, u)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Role != model.RoleStudent {
		t.Errorf("claims = %+v, want user 7 / student", claims)
	}

	if err := svc.ValidateSession(ctx, claims.UserID, claims.ID); err != nil {
		t.Errorf("fresh session rejected: %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	svc, _ := newAuthService(t)

	token, err := svc.GenerateToken(context.Background(), &model.User{ID: 7, Role: model.RoleStudent})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := svc.ValidateToken(token + "x"); err == nil {
		t.Error("tampered token accepted")
	}
}

func TestNewLoginSupersedesOldSession(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	u := &model.User{ID: 7, Role: model.RoleStudent}

	first, err := svc.GenerateToken(ctx, u)
	if err != nil {
		t.Fatalf("first GenerateToken: %v", err)
	}
	second, err := svc.GenerateToken(ctx, u)
	if err != nil {
		t.Fatalf("second GenerateToken: %v", err)
	}

	firstClaims, _ := svc.ValidateToken(first)
	secondClaims, _ := svc.ValidateToken(second)

	if err := svc.ValidateSession(ctx, u.ID, firstClaims.ID); err == nil {
		t.Error("superseded session still validates")
	}
	if err := svc.ValidateSession(ctx, u.ID, secondClaims.ID); err != nil {
		t.Errorf("current session rejected: %v", err)
	}
}

func TestClearSession(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	u := &model.User{ID: 7, Role: model.RoleTeacher}

	token, err := svc.GenerateToken(ctx, u)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, _ := svc.ValidateToken(token)

	if err := svc.ClearSession(ctx, u.ID); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if err := svc.ValidateSession(ctx, u.ID, claims.ID); err == nil {
		t.Error("cleared session still validates")
	}
}

func TestSessionExpiresWithToken(t *testing.T) {
	svc, mr := newAuthService(t)
	ctx := context.Background()
	u := &model.User{ID: 7, Role: model.RoleStudent}

	token, err := svc.GenerateToken(ctx, u)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, _ := svc.ValidateToken(token)

	mr.FastForward(2 * time.Hour)

	if err := svc.ValidateSession(ctx, u.ID, claims.ID); err == nil {
		t.Error("expired session still validates")
	}
}
