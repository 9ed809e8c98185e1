package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/pkg/jwt"
)

func newAuthService(f *fixture, idle time.Duration) AuthService {
	f.clock.Set(time.Now().UTC())
	return NewAuthService(f.deps, AuthOptions{
		Tokens:      jwt.NewManager("test-secret", time.Hour, "test"),
		TTL:         time.Hour,
		IdleTimeout: idle,
	})
}

func TestLoginAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAuthService(f, 0)

	res, err := svc.Login(ctx, LoginInput{Login: "staff", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, auth.RoleStaff, res.User.Role)
	assert.Contains(t, res.User.Permissions, auth.ActionTransactionCreate)
	assert.NotContains(t, res.User.Permissions, auth.ActionProductDelete)

	user, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.staff, user.Principal())

	byEmail, err := svc.Login(ctx, LoginInput{Login: "STAFF@example.com", Password: "password123"})
	require.NoError(t, err)

	// a newer login ends the older session
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = svc.Authenticate(ctx, byEmail.Token)
	assert.NoError(t, err)
}

func TestLoginRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAuthService(f, 0)

	_, err := svc.Login(ctx, LoginInput{Login: "staff", Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Login: "nobody", Password: "password123"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Login: "", Password: "x"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestIdleSessionExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAuthService(f, 5*time.Minute)

	res, err := svc.Login(ctx, LoginInput{Login: "staff", Password: "password123"})
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, svc.Heartbeat(ctx, f.staff))
	require.Len(t, f.events.ofType(event.UserPresence), 1)

	f.clock.Advance(4 * time.Minute)
	_, err = svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRegisterCreatesStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAuthService(f, 0)

	u, err := svc.Register(ctx, RegisterInput{Username: "newbie", Email: "New@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, u.Role)
	assert.Equal(t, "new@example.com", u.Email)

	_, err = svc.Register(ctx, RegisterInput{Username: "newbie", Email: "other@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperror.ErrDuplicate)

	_, err = svc.Register(ctx, RegisterInput{Username: "x", Email: "bad", Password: "1"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = svc.Login(ctx, LoginInput{Login: "new@example.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestChangePasswordEndsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := newAuthService(f, 0)

	res, err := svc.Login(ctx, LoginInput{Login: "staff", Password: "password123"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, f.staff, ChangePasswordInput{OldPassword: "nope", NewPassword: "changed1"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	require.NoError(t, svc.ChangePassword(ctx, f.staff, ChangePasswordInput{OldPassword: "password123", NewPassword: "changed1"}))
	_, err = svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = svc.Login(ctx, LoginInput{Login: "staff", Password: "changed1"})
	assert.NoError(t, err)
}
