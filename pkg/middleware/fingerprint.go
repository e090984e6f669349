package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/common"
	"github.com/gatekit/admission/pkg/infra/fingerprint"
)

type fingerPrintMiddleware struct {
	logger  *logrus.Logger
	tracker fingerprint.Tracker
}

// NewFingerPrintMiddleware derives the client identity used for rate limit
// key selection and stores it in both fiber locals and the user context.
func NewFingerPrintMiddleware(
	logger *logrus.Logger,
	tracker fingerprint.Tracker,
) Middleware {
	return &fingerPrintMiddleware{
		logger:  logger,
		tracker: tracker,
	}
}

func (m *fingerPrintMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		fingerPrint := m.tracker.MakeFingerprint(ctx)
		ctx.Locals(common.FingerprintIdContextKey, fingerPrint.ID())

		id := uuid.New().String()
		ctx.Locals(common.TraceIdKey, id)

		c := context.WithValue(ctx.Context(), common.FingerprintIdContextKey, fingerPrint.ID())
		c = context.WithValue(c, common.TraceIdKey, id)
		if fingerPrint.AccountID != "" {
			ctx.Locals(common.AccountIdContextKey, fingerPrint.AccountID)
			c = context.WithValue(c, common.AccountIdContextKey, fingerPrint.AccountID)
		}
		ctx.SetUserContext(c)
		return ctx.Next()
	}
}
