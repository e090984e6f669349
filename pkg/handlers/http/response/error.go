package response

import "github.com/gofiber/fiber/v2"

const (
	TypeValidationError  = "validation_error"
	TypeRateLimitError   = "rate_limit_error"
	TypeIdempotencyError = "idempotency_error"
	TypeAPIError         = "api_error"
)

// ErrorBody is the envelope every client-facing error uses.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func Error(ctx *fiber.Ctx, status int, errType, message string) error {
	return ctx.Status(status).JSON(ErrorEnvelope{
		Error: ErrorBody{
			Type:    errType,
			Message: message,
		},
	})
}
