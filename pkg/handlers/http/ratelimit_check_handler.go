package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/handlers/http/response"
	"github.com/gatekit/admission/pkg/infra/prometheus"
	"github.com/gatekit/admission/pkg/ratelimit"
)

type rateLimitCheckRequest struct {
	Key           string `json:"key"`
	Limit         int    `json:"limit"`
	WindowSeconds int    `json:"window_seconds"`
}

type rateLimitCheckHandler struct {
	logger  *logrus.Logger
	limiter ratelimit.Limiter
}

// NewRateLimitCheckHandler exposes the limiter to out-of-process request
// boundaries. Key derivation stays with the caller.
func NewRateLimitCheckHandler(
	logger *logrus.Logger,
	limiter ratelimit.Limiter,
) Handler {
	return &rateLimitCheckHandler{
		logger:  logger,
		limiter: limiter,
	}
}

func (h *rateLimitCheckHandler) Handle(c *fiber.Ctx) error {
	var req rateLimitCheckRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind request")
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, err.Error())
	}

	if req.Key == "" {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "key is required")
	}
	if req.Limit < 0 {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "limit must not be negative")
	}
	if req.WindowSeconds <= 0 {
		return response.Error(c, fiber.StatusBadRequest, response.TypeValidationError, "window_seconds must be positive")
	}

	decision, err := h.limiter.Check(
		c.Context(),
		req.Key,
		req.Limit,
		time.Duration(req.WindowSeconds)*time.Second,
	)
	if err != nil {
		prometheus.StoreFailuresTotal.WithLabelValues("ratelimit").Inc()
		h.logger.WithError(err).Error("Failed to check rate limit")
		return response.Error(c, fiber.StatusServiceUnavailable,
			response.TypeAPIError, "rate limit check unavailable, retry later")
	}

	if decision.Allowed {
		prometheus.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
	} else {
		prometheus.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
	}

	return c.Status(fiber.StatusOK).JSON(decision)
}
