package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/handlers/http/response"
	"github.com/gatekit/admission/pkg/idempotency"
	"github.com/gatekit/admission/pkg/infra/prometheus"
)

type idempotencyBeginRequest struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
}

type idempotencyBeginResponse struct {
	Outcome idempotency.Outcome `json:"outcome"`
	Result  *idempotency.Result `json:"result,omitempty"`
}

type idempotencyBeginHandler struct {
	logger *logrus.Logger
	store  idempotency.Store
}

func NewIdempotencyBeginHandler(
	logger *logrus.Logger,
	store idempotency.Store,
) Handler {
	return &idempotencyBeginHandler{
		logger: logger,
		store:  store,
	}
}

func (h *idempotencyBeginHandler) Handle(c *fiber.Ctx) error {
	var req idempotencyBeginRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind request")
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, err.Error())
	}

	if req.Key == "" {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "key is required")
	}
	if req.Fingerprint == "" {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "fingerprint is required")
	}

	outcome, result, err := h.store.Begin(c.Context(), req.Key, req.Fingerprint)
	if err != nil {
		prometheus.StoreFailuresTotal.WithLabelValues("idempotency").Inc()
		h.logger.WithError(err).Error("Failed to begin idempotent request")
		return response.Error(c, fiber.StatusServiceUnavailable,
			response.TypeAPIError, "idempotency check unavailable, retry later")
	}
	prometheus.IdempotencyOutcomesTotal.WithLabelValues(string(outcome)).Inc()

	status := fiber.StatusOK
	if outcome == idempotency.OutcomeConflict {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(idempotencyBeginResponse{
		Outcome: outcome,
		Result:  result,
	})
}
