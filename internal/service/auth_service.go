package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/pkg/jwt"
	"go-inventory-ledger/pkg/validator"
)

var (
	ErrInvalidCredentials = apperror.Unauthorized(apperror.CodeInvalidCredentials, "invalid username/email or password")
	ErrSessionExpired     = apperror.Unauthorized(apperror.CodeSessionExpired, "session expired, please log in again")
)

type LoginInput struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
	FullName string `json:"full_name" validate:"max=255"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type LoginResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      model.UserResponse `json:"user"`
}

type AuthOptions struct {
	Tokens *jwt.Manager
	TTL    time.Duration
	// zero disables the inactivity check
	IdleTimeout time.Duration
}

// AuthService authenticates credentials and bearer tokens into principals.
// Each login rotates the user's token version, so only the newest session
// stays valid.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*LoginResponse, error)
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	ChangePassword(ctx context.Context, p auth.Principal, in ChangePasswordInput) error
	Heartbeat(ctx context.Context, p auth.Principal) error
}

type authService struct {
	Deps
	opts AuthOptions
}

func NewAuthService(d Deps, opts AuthOptions) AuthService {
	return &authService{Deps: d.withDefaults(), opts: opts}
}

func (s *authService) Login(ctx context.Context, in LoginInput) (*LoginResponse, error) {
	if err := validationError(validator.ValidateStruct(&in)); err != nil {
		return nil, err
	}

	user, err := s.Users.FindByLogin(ctx, in.Login)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if !user.IsActive || !user.CheckPassword(in.Password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	version := uuid.NewString()
	if err := s.Users.StartSession(ctx, user.ID, version, now); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	user.TokenVersion = version
	user.LastSeenAt = &now

	token, err := s.opts.Tokens.Generate(user.ID, user.Username, string(user.Role), version)
	if err != nil {
		return nil, err
	}

	s.Log.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	return &LoginResponse{
		Token:     token,
		ExpiresAt: now.Add(s.opts.TTL),
		User:      user.ToResponse(),
	}, nil
}

// Register creates a staff account. Admins are made through user management.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	return createUser(ctx, s.Deps, CreateUserInput{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
		FullName: in.FullName,
		Role:     auth.RoleStaff,
	}, "self-register")
}

func (s *authService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.opts.Tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized(apperror.CodeInvalidCredentials, err.Error())
	}

	user, err := s.Users.FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if !user.IsActive || user.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionExpired
	}
	if s.opts.IdleTimeout > 0 {
		if user.LastSeenAt == nil || s.now().Sub(*user.LastSeenAt) > s.opts.IdleTimeout {
			return nil, ErrSessionExpired
		}
	}
	return user, nil
}

func (s *authService) ChangePassword(ctx context.Context, p auth.Principal, in ChangePasswordInput) error {
	if !p.Authenticated() {
		return ErrInvalidCredentials
	}
	if err := validationError(validator.ValidateStruct(&in)); err != nil {
		return err
	}

	user, err := s.Users.FindByID(ctx, p.UserID)
	if err != nil {
		return apperror.FromStorage(err, ErrSessionExpired, nil)
	}
	if !user.CheckPassword(in.OldPassword) {
		return apperror.InvalidArgument(apperror.CodeInvalidCredentials, "old_password", "current password is incorrect")
	}
	if err := user.SetPassword(in.NewPassword); err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, user.ID, user.Password); err != nil {
		return apperror.StorageUnavailable(err)
	}
	return nil
}

// Heartbeat keeps the session alive and tells connected clients the user is online
func (s *authService) Heartbeat(ctx context.Context, p auth.Principal) error {
	if !p.Authenticated() {
		return ErrInvalidCredentials
	}
	now := s.now()
	if err := s.Users.UpdateLastSeen(ctx, p.UserID, now); err != nil {
		return apperror.StorageUnavailable(err)
	}

	e := event.New(event.UserPresence, p.UserID.String(), now, map[string]interface{}{
		"user_id":      p.UserID.String(),
		"status":       "online",
		"last_seen_at": now,
	})
	s.publish(ctx, e, p)
	return nil
}
