package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/event"
	"go-inventory-ledger/internal/metrics"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/pkg/validator"
)

// Clock returns the current time; services store what it returns in UTC
type Clock func() time.Time

// Deps is what the services are built from. Zero fields get working defaults
// (no-op publisher and logger, the static role policy, wall clock).
type Deps struct {
	DB           *gorm.DB
	Products     repository.ProductRepository
	Categories   repository.CategoryRepository
	Transactions repository.TransactionRepository
	Users        repository.UserRepository
	Authorizer   auth.Authorizer
	Publisher    event.Publisher
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	Clock        Clock
}

// NewDeps wires the GORM repositories over db
func NewDeps(db *gorm.DB) Deps {
	return Deps{
		DB:           db,
		Products:     repository.NewProductRepo(db),
		Categories:   repository.NewCategoryRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Users:        repository.NewUserRepo(db),
	}
}

func (d Deps) withDefaults() Deps {
	if d.Authorizer == nil {
		d.Authorizer = auth.PolicyAuthorizer{}
	}
	if d.Publisher == nil {
		d.Publisher = event.Nop
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Clock().UTC()
}

const publishTimeout = 3 * time.Second

// publish hands e to the sinks after the change is committed. It outlives the
// request's cancellation, and a failing sink never fails the operation.
func (d Deps) publish(ctx context.Context, e event.Event, p auth.Principal) {
	if p.Authenticated() {
		e.Actor = &event.Actor{ID: p.UserID, Username: p.Username}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.Publisher.Publish(ctx, e); err != nil {
		d.Log.Warn("event publish failed", zap.String("event_type", string(e.Type)), zap.Error(err))
	}
}

// validationError converts the first validator failure into InvalidArgument
func validationError(errs []*validator.ErrorResponse) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	msg := fmt.Sprintf("%s failed on '%s'", first.FailedField, first.Tag)
	if first.Value != "" {
		msg = fmt.Sprintf("%s failed on '%s=%s'", first.FailedField, first.Tag, first.Value)
	}
	return apperror.InvalidArgument(apperror.CodeInvalidField, first.FailedField, msg)
}

func requireText(field, value string, max int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperror.InvalidArgument(apperror.CodeInvalidField, field, field+" is required")
	}
	if len([]rune(value)) > max {
		return apperror.InvalidArgument(apperror.CodeInvalidField, field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}
