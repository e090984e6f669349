package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/handlers/http/response"
	"github.com/gatekit/admission/pkg/idempotency"
	"github.com/gatekit/admission/pkg/infra/prometheus"
)

type idempotencyCompleteRequest struct {
	Key        string `json:"key"`
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

type idempotencyCompleteHandler struct {
	logger *logrus.Logger
	store  idempotency.Store
}

func NewIdempotencyCompleteHandler(
	logger *logrus.Logger,
	store idempotency.Store,
) Handler {
	return &idempotencyCompleteHandler{
		logger: logger,
		store:  store,
	}
}

func (h *idempotencyCompleteHandler) Handle(c *fiber.Ctx) error {
	var req idempotencyCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind request")
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, err.Error())
	}

	if req.Key == "" {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "key is required")
	}
	if req.StatusCode < 100 || req.StatusCode > 599 {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "status_code must be a valid HTTP status")
	}

	err := h.store.Complete(c.Context(), req.Key, idempotency.Result{
		StatusCode: req.StatusCode,
		Body:       req.Body,
	})
	if err != nil {
		prometheus.StoreFailuresTotal.WithLabelValues("idempotency").Inc()
		h.logger.WithError(err).Error("Failed to complete idempotent request")
		return response.Error(c, fiber.StatusServiceUnavailable,
			response.TypeAPIError, "idempotency store unavailable, retry later")
	}

	return c.SendStatus(fiber.StatusNoContent)
}
