package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/pkg/validator"
)

type CreateCategoryInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
}

type UpdateCategoryInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CategoryService interface {
	Create(ctx context.Context, p auth.Principal, in CreateCategoryInput) (*model.CategoryResponse, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.CategoryResponse, error)
	List(ctx context.Context, p auth.Principal, search string) ([]model.CategoryResponse, error)
	Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateCategoryInput) (*model.CategoryResponse, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
}

type categoryService struct {
	Deps
}

func NewCategoryService(d Deps) CategoryService {
	return &categoryService{Deps: d.withDefaults()}
}

func categoryNotFound() *apperror.Error {
	return apperror.NotFound(apperror.CodeCategoryNotFound, "category not found")
}

func duplicateCategory(name string) *apperror.Error {
	return apperror.Duplicate(apperror.CodeDuplicateName, "name", fmt.Sprintf("category %q already exists", name))
}

func (s *categoryService) withCount(ctx context.Context, c *model.Category) (*model.CategoryResponse, error) {
	counts, err := s.Categories.ProductCounts(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	res := c.ToResponse()
	res.ProductCount = counts[c.ID]
	return &res, nil
}

func (s *categoryService) Create(ctx context.Context, p auth.Principal, in CreateCategoryInput) (*model.CategoryResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionCategoryCreate); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validationError(validator.ValidateStruct(&in)); err != nil {
		return nil, err
	}

	if _, err := s.Categories.FindByName(ctx, in.Name); err == nil {
		return nil, duplicateCategory(in.Name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.StorageUnavailable(err)
	}

	now := s.now()
	category := &model.Category{Name: in.Name, Description: trimmedOrNil(in.Description)}
	category.CreatedAt = now
	category.UpdatedAt = now
	category.CreatedBy = p.UserID.String()
	category.UpdatedBy = p.UserID.String()

	if err := s.Categories.Create(ctx, category); err != nil {
		return nil, apperror.FromStorage(err, nil, duplicateCategory(in.Name))
	}

	res := category.ToResponse()
	e := event.New(event.CategoryCreated, category.ID.String(), now, res)
	e.Message = fmt.Sprintf("%s created category '%s'", p.Username, category.Name)
	s.publish(ctx, e, p)
	return &res, nil
}

func (s *categoryService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.CategoryResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionCategoryView); err != nil {
		return nil, err
	}
	category, err := s.Categories.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, categoryNotFound(), nil)
	}
	return s.withCount(ctx, category)
}

func (s *categoryService) List(ctx context.Context, p auth.Principal, search string) ([]model.CategoryResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionCategoryView); err != nil {
		return nil, err
	}
	categories, err := s.Categories.List(ctx, search)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	ids := make([]uuid.UUID, len(categories))
	for i := range categories {
		ids[i] = categories[i].ID
	}
	counts, err := s.Categories.ProductCounts(ctx, ids)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}

	out := make([]model.CategoryResponse, len(categories))
	for i := range categories {
		out[i] = categories[i].ToResponse()
		out[i].ProductCount = counts[categories[i].ID]
	}
	return out, nil
}

func (s *categoryService) Update(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateCategoryInput) (*model.CategoryResponse, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionCategoryUpdate); err != nil {
		return nil, err
	}

	category, err := s.Categories.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, categoryNotFound(), nil)
	}

	if in.Name != nil {
		if err := requireText("name", *in.Name, 255); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(*in.Name)
		existing, err := s.Categories.FindByName(ctx, name)
		switch {
		case err == nil && existing.ID != category.ID:
			return nil, duplicateCategory(name)
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperror.StorageUnavailable(err)
		}
		category.Name = name
	}
	if in.Description != nil {
		category.Description = trimmedOrNil(in.Description)
	}

	category.UpdatedAt = s.now()
	category.UpdatedBy = p.UserID.String()
	if err := s.Categories.Update(ctx, category); err != nil {
		return nil, apperror.FromStorage(err, nil, duplicateCategory(category.Name))
	}

	res, err := s.withCount(ctx, category)
	if err != nil {
		return nil, err
	}
	e := event.New(event.CategoryUpdated, category.ID.String(), category.UpdatedAt, res)
	e.Message = fmt.Sprintf("%s updated category '%s'", p.Username, category.Name)
	s.publish(ctx, e, p)
	return res, nil
}

// Delete removes a category that no active product references. Retired
// products keep their history but lose the link.
func (s *categoryService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.Authorizer.Authorize(p, auth.ActionCategoryDelete); err != nil {
		return err
	}

	var category *model.Category
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categories := s.Categories.WithTx(tx)
		products := s.Products.WithTx(tx)

		var err error
		if category, err = categories.FindByID(ctx, id); err != nil {
			return apperror.FromStorage(err, categoryNotFound(), nil)
		}

		count, err := products.CountActiveByCategory(ctx, id)
		if err != nil {
			return apperror.StorageUnavailable(err)
		}
		if count > 0 {
			return categoryInUse(count)
		}
		if err := products.DetachRetiredFromCategory(ctx, id); err != nil {
			return apperror.StorageUnavailable(err)
		}
		return categories.Delete(ctx, id)
	})
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return categoryInUse(0)
	}
	if err != nil {
		return apperror.FromStorage(err, categoryNotFound(), nil)
	}

	e := event.New(event.CategoryDeleted, id.String(), s.now(), map[string]interface{}{
		"id":   category.ID,
		"name": category.Name,
	})
	e.Message = fmt.Sprintf("%s deleted category '%s'", p.Username, category.Name)
	s.publish(ctx, e, p)
	return nil
}

func categoryInUse(count int64) *apperror.Error {
	details := map[string]interface{}{}
	if count > 0 {
		details["product_count"] = count
	}
	return apperror.InUse(apperror.CodeCategoryInUse,
		"category still has products; move or delete them first", details)
}
