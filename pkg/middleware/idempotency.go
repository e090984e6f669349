package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/common"
	"github.com/gatekit/admission/pkg/handlers/http/response"
	"github.com/gatekit/admission/pkg/idempotency"
	"github.com/gatekit/admission/pkg/infra/prometheus"
)

type idempotencyMiddleware struct {
	logger *logrus.Logger
	store  idempotency.Store
}

// NewIdempotencyMiddleware deduplicates mutating requests that carry an
// Idempotency-Key header. Requests without the header pass through.
func NewIdempotencyMiddleware(
	logger *logrus.Logger,
	store idempotency.Store,
) Middleware {
	return &idempotencyMiddleware{
		logger: logger,
		store:  store,
	}
}

func (m *idempotencyMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if !isMutating(ctx.Method()) {
			return ctx.Next()
		}
		key := ctx.Get(common.IdempotencyKeyHeader)
		if key == "" {
			return ctx.Next()
		}

		fp := idempotency.Fingerprint(ctx.Method(), ctx.Path(), ctx.Body())

		outcome, result, err := m.store.Begin(ctx.UserContext(), key, fp)
		if err != nil {
			prometheus.StoreFailuresTotal.WithLabelValues("idempotency").Inc()
			m.logger.WithError(err).Error("idempotency check failed")
			return response.Error(ctx, fiber.StatusServiceUnavailable,
				response.TypeAPIError, "idempotency check unavailable, retry later")
		}
		prometheus.IdempotencyOutcomesTotal.WithLabelValues(string(outcome)).Inc()

		switch outcome {
		case idempotency.OutcomeReplay:
			ctx.Set(common.IdempotencyReplayedHeader, "true")
			if result == nil {
				return ctx.SendStatus(fiber.StatusNoContent)
			}
			return ctx.Status(result.StatusCode).Send(result.Body)

		case idempotency.OutcomeConflict:
			return response.Error(ctx, fiber.StatusConflict,
				response.TypeIdempotencyError,
				"idempotency key reused with different request parameters")

		case idempotency.OutcomeInProgress:
			ctx.Set(common.RetryAfterHeader, "1")
			return response.Error(ctx, fiber.StatusConflict,
				response.TypeIdempotencyError,
				"a request with this idempotency key is still in progress")
		}

		if err := ctx.Next(); err != nil {
			return err
		}

		stored := idempotency.Result{
			StatusCode: ctx.Response().StatusCode(),
			Body:       append([]byte{}, ctx.Response().Body()...),
		}
		if err := m.store.Complete(ctx.UserContext(), key, stored); err != nil {
			// The response already went out; the record stays in_progress
			// until expiry.
			m.logger.WithError(err).WithField("key", key).Error("failed to complete idempotency record")
		}
		return nil
	}
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}
