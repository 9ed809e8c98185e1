package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/auth"
)

// User represents an authenticated user in the system
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_username_active,where:deleted_at IS NULL"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_users_email_active,where:deleted_at IS NULL"`
	Password     string     `gorm:"type:varchar(255);not null"`
	FullName     string     `gorm:"type:varchar(255)"`
	Role         auth.Role  `gorm:"type:varchar(20);not null"`
	IsActive     bool       `gorm:"not null"`
	TokenVersion string     `gorm:"type:varchar(64);not null;default:''"` // single session enforcement
	LastSeenAt   *time.Time

	DeletedAt gorm.DeletedAt `gorm:"index"`
	DeletedBy string         `gorm:"type:varchar(64)"`
}

// SetPassword hashes and sets the user's password
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// Principal is the identity the core authorizes against
func (u *User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// UserResponse is used for API responses (without sensitive data)
type UserResponse struct {
	ID          uuid.UUID     `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	FullName    string        `json:"full_name"`
	Role        auth.Role     `json:"role"`
	Permissions []auth.Action `json:"permissions"`
	IsActive    bool          `json:"is_active"`
	LastSeenAt  *time.Time    `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Permissions: auth.Actions(u.Role),
		IsActive:    u.IsActive,
		LastSeenAt:  u.LastSeenAt,
		CreatedAt:   u.CreatedAt,
	}
}
