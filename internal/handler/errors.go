package handler

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-inventory-ledger/internal/apperror"
	"go-inventory-ledger/internal/middleware"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindNotFound:           fiber.StatusNotFound,
	apperror.KindDuplicate:          fiber.StatusConflict,
	apperror.KindInvalidArgument:    fiber.StatusBadRequest,
	apperror.KindInsufficientStock:  fiber.StatusBadRequest,
	apperror.KindInUse:              fiber.StatusConflict,
	apperror.KindUnauthorized:       fiber.StatusUnauthorized,
	apperror.KindForbidden:          fiber.StatusForbidden,
	apperror.KindStorageUnavailable: fiber.StatusServiceUnavailable,
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Kind    apperror.Kind          `json:"kind,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler is the app-wide fiber error handler
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			status, ok := kindStatus[appErr.Kind]
			if !ok {
				status = fiber.StatusInternalServerError
			}
			if appErr.Kind == apperror.KindStorageUnavailable {
				log.Error("storage unavailable",
					zap.String("request_id", middleware.GetRequestID(c)),
					zap.Error(appErr.Err))
			}
			return c.Status(status).JSON(ErrorResponse{
				Error:   appErr.Message,
				Kind:    appErr.Kind,
				Code:    appErr.Code,
				Field:   appErr.Field,
				Details: appErr.Details,
			})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
		}

		log.Error("unhandled error", zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal server error"})
	}
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, apperror.InvalidArgument(apperror.CodeInvalidField, param, "invalid "+param+" format")
	}
	return id, nil
}

// parseBody decodes the JSON body, naming the offending field on type errors
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperror.InvalidArgument(apperror.CodeInvalidField, typeErr.Field,
				typeErr.Field+" must be "+typeErr.Type.String())
		}
		if errors.Is(err, fiber.ErrUnprocessableEntity) {
			return apperror.InvalidArgument(apperror.CodeInvalidField, "",
				"Content-Type must be application/json")
		}
		return apperror.InvalidArgument(apperror.CodeInvalidField, "", "invalid JSON body")
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.InvalidArgument(apperror.CodeInvalidField, key, key+" must be an integer")
	}
	return v, nil
}

// queryLimit ignores malformed values; the services fall back to their default
func queryLimit(c *fiber.Ctx) int {
	v, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return v
}

type listMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
