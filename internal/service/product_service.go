package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/pkg/validator"
)

type CreateProductInput struct {
	Name         string          `json:"name" validate:"required,max=255"`
	SKU          string          `json:"sku" validate:"required,max=100"`
	Description  *string         `json:"description"`
	Price        decimal.Decimal `json:"price" validate:"gt=0"`
	Stock        int             `json:"stock" validate:"gte=0"`
	MinimumStock *int            `json:"minimum_stock" validate:"omitempty,gte=0"`
	CategoryID   *uuid.UUID      `json:"category_id"`
}

// UpdateProductInput edits metadata only. Nil fields are left alone; a nil
// CategoryID UUID clears the category and ClearMinimumStock drops the threshold.
type UpdateProductInput struct {
	Name              *string          `json:"name"`
	SKU               *string          `json:"sku"`
	Description       *string          `json:"description"`
	Price             *decimal.Decimal `json:"price"`
	MinimumStock      *int             `json:"minimum_stock"`
	ClearMinimumStock bool             `json:"clear_minimum_stock"`
	CategoryID        *uuid.UUID       `json:"category_id"`
}

type ProductPage struct {
	Items      []model.Product
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

type ProductService interface {
	Create(ctx context.Context, p auth.Principal, in CreateProductInput) (*model.Product, error)
	Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, p auth.Principal, filter repository.ProductFilter) (*ProductPage, error)
	UpdateMetadata(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateProductInput) (*model.Product, error)
	Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error
}

type productService struct {
	Deps
}

func NewProductService(d Deps) ProductService {
	return &productService{Deps: d.withDefaults()}
}

func duplicateSKU(sku string) *apperror.Error {
	return apperror.Duplicate(apperror.CodeDuplicateSKU, "sku", fmt.Sprintf("sku %q already exists", sku))
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validatePrice(price decimal.Decimal) (decimal.Decimal, error) {
	price = price.Round(2)
	if !price.IsPositive() {
		return price, apperror.InvalidArgument(apperror.CodeInvalidField, "price", "price must be greater than 0")
	}
	return price, nil
}

// checkSKUFree fails with Duplicate when another active product owns sku
func checkSKUFree(ctx context.Context, products repository.ProductRepository, sku string, self uuid.UUID) error {
	existing, err := products.FindBySKU(ctx, sku)
	if err == nil && existing.ID != self {
		return duplicateSKU(sku)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.StorageUnavailable(err)
	}
	return nil
}

func resolveCategory(ctx context.Context, categories repository.CategoryRepository, id *uuid.UUID) (*model.Category, error) {
	if id == nil || *id == uuid.Nil {
		return nil, nil
	}
	category, err := categories.FindByID(ctx, *id)
	if err != nil {
		return nil, apperror.FromStorage(err,
			apperror.InvalidArgument(apperror.CodeCategoryNotFound, "category_id", "category does not exist"), nil)
	}
	return category, nil
}

func (s *productService) Create(ctx context.Context, p auth.Principal, in CreateProductInput) (*model.Product, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionProductCreate); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.SKU = model.NormalizeSKU(in.SKU)
	if err := validationError(validator.ValidateStruct(&in)); err != nil {
		return nil, err
	}
	price, err := validatePrice(in.Price)
	if err != nil {
		return nil, err
	}

	now := s.now()
	actor := p.UserID.String()
	product := &model.Product{
		Name:         in.Name,
		SKU:          in.SKU,
		Description:  trimmedOrNil(in.Description),
		Price:        price,
		MinimumStock: in.MinimumStock,
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	product.CreatedBy = actor
	product.UpdatedBy = actor

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.Products.WithTx(tx)

		category, err := resolveCategory(ctx, s.Categories.WithTx(tx), in.CategoryID)
		if err != nil {
			return err
		}
		if category != nil {
			product.CategoryID = &category.ID
		}
		if err := checkSKUFree(ctx, products, product.SKU, uuid.Nil); err != nil {
			return err
		}
		if err := products.Create(ctx, product); err != nil {
			return apperror.FromStorage(err, nil, duplicateSKU(product.SKU))
		}
		product.Category = category

		// opening stock goes through the ledger so replay starts from zero
		if in.Stock > 0 {
			notes := "opening balance"
			if _, err := postMovement(ctx, tx, s.Deps, product, movement{
				Type:     model.TxInitialStock,
				Quantity: in.Stock,
				UserID:   p.UserID,
				Notes:    &notes,
				At:       now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.classifyWriteErr(err, product.SKU)
	}

	e := event.New(event.ProductCreated, product.ID.String(), now, product.ToResponse())
	e.Message = fmt.Sprintf("%s created product '%s'", p.Username, product.Name)
	s.publish(ctx, e, p)
	if product.IsLowStock() {
		s.publish(ctx, lowStockEvent(now, *product), p)
	}
	return product, nil
}

func (s *productService) classifyWriteErr(err error, sku string) error {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return apperror.InvalidArgument(apperror.CodeCategoryNotFound, "category_id", "category does not exist")
	}
	return apperror.FromStorage(err, nil, duplicateSKU(sku))
}

func (s *productService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Product, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionProductView); err != nil {
		return nil, err
	}
	product, err := s.Products.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage(err, productNotFound(), nil)
	}
	return product, nil
}

func (s *productService) List(ctx context.Context, p auth.Principal, filter repository.ProductFilter) (*ProductPage, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionProductView); err != nil {
		return nil, err
	}
	items, total, err := s.Products.List(ctx, filter)
	if err != nil {
		return nil, apperror.StorageUnavailable(err)
	}
	return &ProductPage{
		Items:      items,
		Total:      total,
		Page:       filter.Number(),
		Limit:      filter.Size(),
		TotalPages: repository.TotalPages(total, filter.Size()),
	}, nil
}

// UpdateMetadata never writes stock; stock changes only through the ledger
func (s *productService) UpdateMetadata(ctx context.Context, p auth.Principal, id uuid.UUID, in UpdateProductInput) (*model.Product, error) {
	if err := s.Authorizer.Authorize(p, auth.ActionProductUpdate); err != nil {
		return nil, err
	}

	var (
		product *model.Product
		wasLow  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.Products.WithTx(tx)

		var err error
		product, err = products.FindByID(ctx, id)
		if err != nil {
			return apperror.FromStorage(err, productNotFound(), nil)
		}
		wasLow = product.IsLowStock()

		if err := applyProductUpdate(product, in); err != nil {
			return err
		}
		if in.SKU != nil {
			if err := checkSKUFree(ctx, products, product.SKU, product.ID); err != nil {
				return err
			}
		}
		if in.CategoryID != nil {
			category, err := resolveCategory(ctx, s.Categories.WithTx(tx), in.CategoryID)
			if err != nil {
				return err
			}
			product.Category = category
			product.CategoryID = nil
			if category != nil {
				product.CategoryID = &category.ID
			}
		}

		product.UpdatedAt = s.now()
		product.UpdatedBy = p.UserID.String()
		if err := products.UpdateMetadata(ctx, product); err != nil {
			return apperror.FromStorage(err, nil, duplicateSKU(product.SKU))
		}
		return nil
	})
	if err != nil {
		return nil, s.classifyWriteErr(err, "")
	}

	e := event.New(event.ProductUpdated, product.ID.String(), product.UpdatedAt, product.ToResponse())
	e.Message = fmt.Sprintf("%s updated product '%s'", p.Username, product.Name)
	s.publish(ctx, e, p)
	if !wasLow && product.IsLowStock() {
		s.publish(ctx, lowStockEvent(product.UpdatedAt, *product), p)
	}
	return product, nil
}

func applyProductUpdate(product *model.Product, in UpdateProductInput) error {
	if in.Name != nil {
		if err := requireText("name", *in.Name, 255); err != nil {
			return err
		}
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.SKU != nil {
		if err := requireText("sku", *in.SKU, 100); err != nil {
			return err
		}
		product.SKU = model.NormalizeSKU(*in.SKU)
	}
	if in.Description != nil {
		product.Description = trimmedOrNil(in.Description)
	}
	if in.Price != nil {
		price, err := validatePrice(*in.Price)
		if err != nil {
			return err
		}
		product.Price = price
	}
	if in.ClearMinimumStock {
		product.MinimumStock = nil
	} else if in.MinimumStock != nil {
		if *in.MinimumStock < 0 {
			return apperror.InvalidArgument(apperror.CodeInvalidField, "minimum_stock", "minimum_stock must be zero or more")
		}
		threshold := *in.MinimumStock
		product.MinimumStock = &threshold
	}
	return nil
}

// Delete retires the product. Its ledger history stays intact and the SKU
// becomes available again.
func (s *productService) Delete(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.Authorizer.Authorize(p, auth.ActionProductDelete); err != nil {
		return err
	}

	var product *model.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.Products.WithTx(tx)
		var err error
		if product, err = products.FindByIDForUpdate(ctx, id); err != nil {
			return apperror.FromStorage(err, productNotFound(), nil)
		}
		return products.Retire(ctx, id, p.UserID.String())
	})
	if err != nil {
		return apperror.FromStorage(err, productNotFound(), nil)
	}

	e := event.New(event.ProductRetired, id.String(), s.now(), map[string]interface{}{
		"id":   product.ID,
		"sku":  product.SKU,
		"name": product.Name,
	})
	e.Message = fmt.Sprintf("%s deleted product '%s'", p.Username, product.Name)
	s.publish(ctx, e, p)
	return nil
}
