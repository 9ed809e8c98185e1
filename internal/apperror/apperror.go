// Package apperror defines the typed failures returned by the inventory core.
// Every error carries a Kind that transports map to a status code, a Code that
// refines it, and the Field or Details a client needs to render a message.
package apperror

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindDuplicate          Kind = "duplicate"
	KindInvalidArgument    Kind = "invalid_argument"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindInUse              Kind = "in_use"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindStorageUnavailable Kind = "storage_unavailable"
)

const (
	CodeProductNotFound     = "product_not_found"
	CodeCategoryNotFound    = "category_not_found"
	CodeTransactionNotFound = "transaction_not_found"
	CodeUserNotFound        = "user_not_found"
	CodeInvalidQuantity     = "invalid_quantity"
	CodeInvalidType         = "invalid_type"
	CodeInvalidField        = "invalid_field"
	CodeInsufficientStock   = "insufficient_stock"
	CodeDuplicateSKU        = "duplicate_sku"
	CodeDuplicateName       = "duplicate_name"
	CodeDuplicateUser       = "duplicate_user"
	CodeCategoryInUse       = "category_in_use"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeSessionExpired      = "session_expired"
	CodePermissionDenied    = "permission_denied"
	CodeStorage             = "storage_error"
)

type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code too when the target sets one, so
// errors.Is(err, apperror.ErrNotFound) holds for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDuplicate          = &Error{Kind: KindDuplicate}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrInUse              = &Error{Kind: KindInUse}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
)

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Duplicate(code, field, message string) *Error {
	return &Error{Kind: KindDuplicate, Code: code, Field: field, Message: message}
}

func InvalidArgument(code, field, message string) *Error {
	return &Error{Kind: KindInvalidArgument, Code: code, Field: field, Message: message}
}

func InsufficientStock(available, requested int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Code:    CodeInsufficientStock,
		Field:   "quantity",
		Message: fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested),
		Details: map[string]interface{}{
			"available": available,
			"requested": requested,
		},
	}
}

func InUse(code, message string, details map[string]interface{}) *Error {
	return &Error{Kind: KindInUse, Code: code, Message: message, Details: details}
}

func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodePermissionDenied, Message: message}
}

func StorageUnavailable(err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Code: CodeStorage, Message: "storage unavailable", Err: err}
}

// FromStorage classifies a repository error. notFound is returned for
// gorm.ErrRecordNotFound and dup for gorm.ErrDuplicatedKey; errors that are
// already typed pass through.
func FromStorage(err error, notFound, dup *Error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey) && dup != nil:
		return dup
	default:
		return StorageUnavailable(err)
	}
}

// KindOf reports the kind of err, treating untyped errors as storage failures
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorageUnavailable
}
