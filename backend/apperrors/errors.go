// Package apperrors carries the typed errors the services return. Each error
// knows its HTTP status and a machine-readable code; the Fiber error handler
// is the single place they become JSON.
package apperrors

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CodeValidation     = "validation"
	CodeFreeCourse     = "free_course"
	CodeNotFound       = "not_found"
	CodeForbidden      = "forbidden"
	CodeAlreadyCovered = "already_covered"
	CodeSequence       = "sequence_violation"
	CodeMaxAttempts    = "max_attempts_exceeded"
	CodeUpstream       = "upstream_stream"
	CodeRange          = "range_not_satisfiable"
	CodeInternal       = "internal"
)

type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func Validation(message string) *Error {
	return New(fiber.StatusBadRequest, CodeValidation, message)
}

func FreeCourse(message string) *Error {
	return New(fiber.StatusBadRequest, CodeFreeCourse, message)
}

func NotFound(message string) *Error {
	return New(fiber.StatusNotFound, CodeNotFound, message)
}

func Forbidden(message string) *Error {
	return New(fiber.StatusForbidden, CodeForbidden, message)
}

func AlreadyCovered(message string) *Error {
	return New(fiber.StatusConflict, CodeAlreadyCovered, message)
}

func SequenceViolation(message string) *Error {
	return New(fiber.StatusForbidden, CodeSequence, message)
}

func MaxAttemptsExceeded(message string) *Error {
	return New(fiber.StatusBadRequest, CodeMaxAttempts, message)
}

func Upstream(message string) *Error {
	return New(fiber.StatusBadGateway, CodeUpstream, message)
}

func RangeNotSatisfiable(message string) *Error {
	return New(fiber.StatusRequestedRangeNotSatisfiable, CodeRange, message)
}

// CodeOf returns the machine code of err, or "internal" for anything untyped.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Handler converts service errors into the JSON envelope at the request
// boundary. Untyped errors become a 500 and are logged; nothing panics the
// process from here.
func Handler(log *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ae *Error
		if errors.As(err, &ae) {
			return c.Status(ae.Status).JSON(fiber.Map{
				"success": false,
				"error":   ae.Code,
				"message": ae.Message,
			})
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"success": false,
				"error":   CodeInternal,
				"message": fe.Message,
			})
		}

		log.Errorw("unhandled request error",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   CodeInternal,
			"message": "Internal server error",
		})
	}
}
