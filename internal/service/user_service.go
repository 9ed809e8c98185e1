package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/pkg/config"
	"go-inventory-ledger/pkg/validator"
)

type CreateUserInput struct {
	Username string    `json:"username" validate:"required,min=3,max=100"`
	Email    string    `json:"email" validate:"required,email,max=255"`
	Password string    `json:"password" validate:"required,min=6"`
	FullName string    `json:"full_name" validate:"max=255"`
	Role     auth.Role `json:"role" validate:"required"`
}

type UpdateUserInput struct {
	Email    *string    `json:"email"`
	FullName *string    `json:"full_name"`
	Password *string    `json:"password"`
	Role     *auth.Role `json:"role"`
	IsActive *bool      `json:"is_active"`
}

type UserService interface {
	List(ctx context.Context, p auth.Principal) ([]model.UserResponse, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.User, error)
	Create(ctx context.Context, p auth.Principal, in CreateUserInput) (*model.User, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateUserInput) (*model.User, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
	// SeedAdmin creates the configured admin when no such account exists
	SeedAdmin(ctx context.Context, cfg config.AdminConfig) error
	// ResetPassword is the operator path; it bypasses authorization
	ResetPassword(ctx context.Context, login, password string) (*model.User, error)
}

type userService struct {
	Deps
}

func NewUserService(d Deps) UserService {
	return &userService{Deps: d.withDefaults()}
}

func userNotFound() *apperror.Error {
	return apperror.NotFound(apperror.CodeUserNotFound, "user not found")
}

func duplicateUser() *apperror.Error {
	return apperror.Duplicate(apperror.CodeDuplicateUser, "username", "username or email already exists")
}

func invalidRole(role auth.Role) error {
	return apperror.InvalidArgument(apperror.CodeInvalidField, "role", fmt.Sprintf("unknown role %q", role))
}

func createUser(ctx context.Context, d Deps, in CreateUserInput, createdBy string) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validationError(validator.ValidateStruct(&in)); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, invalidRole(in.Role)
	}

	exists, err := d.Users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email, uuid.Nil)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	if exists {
		return nil, duplicateUser()
	}

	now := d.now()
	user := &model.User{
		Username: in.Username,
		Email:    in.Email,
		FullName: strings.TrimSpace(in.FullName),
		Role:     in.Role,
		IsActive: true,
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	user.CreatedBy = createdBy
	user.UpdatedBy = createdBy
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := d.Users.Create(ctx, user); err != nil {
		return nil, apperror.FromStorage(err, nil, duplicateUser())
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, p auth.Principal) ([]model.UserResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionUserManage); err != nil {
		return nil, err
	}
	users, err := s.Users.FindAll(ctx)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	out := make([]model.UserResponse, len(users))
	for i := range users {
		out[i] = users[i].ToResponse()
	}
	return out, nil
}

func (s *userService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.User, error) {
	// anyone may read their own account
	if p.UserID != id {
		if err := s.Authorizer.Authorize(p, auth.ActionUserManage); err != nil {
			return nil, err
		}
	}
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, userNotFound(), nil)
	}
	return user, nil
}

func (s *userService) Create(ctx context.Context, p auth.Principal, in CreateUserInput) (*model.User, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionUserManage); err != nil {
		return nil, err
	}
	user, err := createUser(ctx, s.Deps, in, p.UserID.String())
	if err != nil {
		return nil, err
	}
	s.Log.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return user, nil
}

// Update changes account fields. Password, role and activation changes end
// the user's current session.
func (s *userService) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionUserManage); err != nil {
		return nil, err
	}
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, userNotFound(), nil)
	}

	endSession := false
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if errs := validator.ValidateStruct(&struct {
			Email string `json:"email" validate:"required,email,max=255"`
		}{email}); len(errs) > 0 {
			return nil, validationError(errs)
		}
		exists, err := s.Users.ExistsByUsernameOrEmail(ctx, "", email, user.ID)
		if err != nil {
			return nil, apperror.StorageUnavailable(err)
		}
		if exists {
			return nil, apperror.Duplicate(apperror.CodeDuplicateUser, "email", "email already exists")
		}
		user.Email = email
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Password != nil {
		if len(*in.Password) < 6 {
			return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "password", "password must be at least 6 characters")
		}
		if err := user.SetPassword(*in.Password); err != nil {
			return nil, err
		}
		endSession = true
	}
	if in.Role != nil && *in.Role != user.Role {
		if !in.Role.Valid() {
			return nil, invalidRole(*in.Role)
		}
		if user.ID == p.UserID {
			return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "role", "you cannot change your own role")
		}
		user.Role = *in.Role
		endSession = true
	}
	if in.IsActive != nil && *in.IsActive != user.IsActive {
		if user.ID == p.UserID && !*in.IsActive {
			return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "is_active", "you cannot deactivate yourself")
		}
		user.IsActive = *in.IsActive
		endSession = true
	}
	if endSession {
		user.TokenVersion = uuid.NewString()
	}

	user.UpdatedAt = s.now()
	user.UpdatedBy = p.UserID.String()
	if err := s.Users.Update(ctx, user); err != nil {
		return nil, apperror.FromStorage(err, userNotFound(), duplicateUser())
	}
	return user, nil
}

func (s *userService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.Authorizer.Authorize(p, auth.ActionUserManage); err != nil {
		return err
	}
	if id == p.UserID {
		return apperror.InvalidArgument(apperror.CodeInvalidField, "id", "you cannot delete your own account")
	}
	if err := s.Users.Delete(ctx, id, p.UserID.String()); err != nil {
		return apperror.FromStorage(err, userNotFound(), nil)
	}
	s.Log.Info("user deleted", zap.String("user_id", id.String()), zap.String("by", p.UserID.String()))
	return nil
}

func (s *userService) SeedAdmin(ctx context.Context, cfg config.AdminConfig) error {
	_, err := s.Users.FindByLogin(ctx, cfg.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.StorageUnavailable(err)
	}

	user, err := createUser(ctx, s.Deps, CreateUserInput{
		Username: cfg.Username,
		Email:    cfg.Email,
		Password: cfg.Password,
		FullName: "Administrator",
		Role:     auth.RoleAdmin,
	}, "system")
	if err != nil {
		return err
	}
	s.Log.Info("seeded admin account", zap.String("username", user.Username))
	return nil
}

func (s *userService) ResetPassword(ctx context.Context, login, password string) (*model.User, error) {
	if len(password) < 6 {
		return nil, apperror.InvalidArgument(apperror.CodeInvalidField, "password", "password must be at least 6 characters")
	}
	user, err := s.Users.FindByLogin(ctx, login)
	if err != nil {
		return nil, apperror.FromStorage(err, userNotFound(), nil)
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.Users.UpdatePassword(ctx, user.ID, user.Password); err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	return user, nil
}
