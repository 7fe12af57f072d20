package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
)

func statusFor(code string) int {
	switch code {
	case string(entity.KindDurationExceeded),
		string(entity.KindSizeExceeded),
		string(entity.KindUnsupportedFormat),
		string(entity.KindFileUnavailable),
		string(entity.KindInvalidMetadata):
		return fiber.StatusUnprocessableEntity
	case "duplicate_published", "duplicate_under_review", "invalid_transition":
		return fiber.StatusConflict
	case "not_found":
		return fiber.StatusNotFound
	case "timeout":
		return fiber.StatusGatewayTimeout
	case "canceled":
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders a domain error as {error, message} with a matching status.
func writeError(c *fiber.Ctx, err error) error {
	code, message := entity.Describe(err)
	return c.Status(statusFor(code)).JSON(errorResponse{Error: code, Message: message})
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: code, Message: message})
}

// errorHandler renders errors returned from handlers and middleware, such as
// unknown routes.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorResponse{Error: "http_error", Message: fe.Message})
	}
	return writeError(c, err)
}
