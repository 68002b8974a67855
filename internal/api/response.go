package api

import (
	"github.com/gofiber/fiber/v2"
)

// Error codes returned in the response envelope. Clients branch on these,
// not on the HTTP status or the human-readable message.
const (
	CodeUserIDRequired     = "USER_ID_REQUIRED"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeMissingFields      = "MISSING_FIELDS"
	CodeInvalidCoordinates = "INVALID_COORDINATES"
	CodeDuplicateReport    = "DUPLICATE_REPORT"
	CodeInvalidState       = "INVALID_STATE"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
)

// statusForCode maps an error code to its HTTP status.
func statusForCode(code string) int {
	switch code {
	case CodeUserIDRequired:
		return fiber.StatusUnauthorized
	case CodeRateLimitExceeded:
		return fiber.StatusTooManyRequests
	case CodeMissingFields, CodeInvalidCoordinates, CodeInvalidState:
		return fiber.StatusBadRequest
	case CodeDuplicateReport:
		return fiber.StatusConflict
	case CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// respondData writes a success envelope with the given payload.
func respondData(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// respondError writes an error envelope. Extra fields (e.g. retry_after,
// the existing report on a duplicate) are merged into the body.
func respondError(c *fiber.Ctx, code, message string, extra ...fiber.Map) error {
	body := fiber.Map{
		"success": false,
		"code":    code,
		"message": message,
	}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.Status(statusForCode(code)).JSON(body)
}
