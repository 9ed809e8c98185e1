package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category struct {
	BaseModel
	Name        string  `gorm:"type:varchar(255);not null"`
	NameKey     string  `gorm:"type:varchar(255);not null;uniqueIndex"` // NormalizeCategoryName(Name)
	Description *string `gorm:"type:text"`
}

// NormalizeCategoryName is the form category names are unique under
func NormalizeCategoryName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type CategoryResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	ProductCount int64     `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Category) ToResponse() CategoryResponse {
	return CategoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
