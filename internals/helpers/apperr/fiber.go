package apperr

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	helper "schoolku_backend/internals/helpers"
)

func HTTPStatus(k Kind) int {
	switch k {
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindMinFirstPayment, KindValidation:
		return fiber.StatusUnprocessableEntity
	case KindResultBlocked:
		return fiber.StatusPaymentRequired
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler is installed as fiber.Config.ErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindValidation && len(ae.Fields) > 0 {
			return helper.JsonValidationError(c, ae.Fields)
		}
		status := HTTPStatus(ae.Kind)
		if status >= 500 {
			log.Printf("[ERROR] %s %s: %v", c.Method(), c.OriginalURL(), err)
			return helper.JsonError(c, status, "internal error")
		}
		return helper.JsonErrorCode(c, status, string(ae.Kind), ae.Message, ae.Details)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return helper.JsonError(c, fe.Code, fe.Message)
	}

	log.Printf("[ERROR] %s %s: %v", c.Method(), c.OriginalURL(), err)
	return helper.JsonError(c, fiber.StatusInternalServerError, "internal error")
}
