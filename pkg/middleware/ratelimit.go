package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/common"
	"github.com/gatekit/admission/pkg/handlers/http/response"
	"github.com/gatekit/admission/pkg/infra/prometheus"
	"github.com/gatekit/admission/pkg/ratelimit"
)

type limitSetting struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type rateLimitSettings struct {
	Default   limitSetting            `mapstructure:"default"`
	Endpoints map[string]limitSetting `mapstructure:"endpoints"`
}

type rateLimitMiddleware struct {
	logger     *logrus.Logger
	limiter    ratelimit.Limiter
	keyBuilder *ratelimit.KeyBuilder
	settings   rateLimitSettings
}

// NewRateLimitMiddleware enforces per-endpoint fixed-window limits.
// Settings carry a default policy plus per-path overrides:
//
//	{"default": {"limit": 100, "window": "1m"},
//	 "endpoints": {"/v1/orders": {"limit": 10, "window": "1m"}}}
func NewRateLimitMiddleware(
	logger *logrus.Logger,
	limiter ratelimit.Limiter,
	keyBuilder *ratelimit.KeyBuilder,
	settings map[string]interface{},
) (Middleware, error) {
	var decoded rateLimitSettings
	if err := mapstructure.Decode(settings, &decoded); err != nil {
		return nil, fmt.Errorf("invalid rate limit settings: %w", err)
	}
	if decoded.Default.Limit <= 0 {
		decoded.Default.Limit = common.DefaultRateLimit
	}
	if decoded.Default.Window == "" {
		decoded.Default.Window = common.DefaultRateWindow.String()
	}
	if _, err := time.ParseDuration(decoded.Default.Window); err != nil {
		return nil, fmt.Errorf("invalid default window: %w", err)
	}
	for path, setting := range decoded.Endpoints {
		if setting.Limit < 0 {
			return nil, fmt.Errorf("negative limit for endpoint %s", path)
		}
		if _, err := time.ParseDuration(setting.Window); err != nil {
			return nil, fmt.Errorf("invalid window for endpoint %s: %w", path, err)
		}
	}

	return &rateLimitMiddleware{
		logger:     logger,
		limiter:    limiter,
		keyBuilder: keyBuilder,
		settings:   decoded,
	}, nil
}

func (m *rateLimitMiddleware) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		path := ctx.Path()
		limit, window := m.resolvePolicy(path)
		key := m.resolveKey(ctx, path)

		started := time.Now()
		decision, err := m.limiter.Check(ctx.UserContext(), key, limit, window)
		prometheus.RateLimitCheckLatency.Observe(float64(time.Since(started).Microseconds()) / 1000)
		if err != nil {
			prometheus.StoreFailuresTotal.WithLabelValues("ratelimit").Inc()
			m.logger.WithError(err).Error("rate limit check failed")
			return response.Error(ctx, fiber.StatusServiceUnavailable,
				response.TypeAPIError, "rate limit check unavailable, retry later")
		}

		ctx.Set(common.RateLimitLimitHeader, strconv.Itoa(decision.Limit))
		ctx.Set(common.RateLimitRemainingHeader, strconv.Itoa(decision.Remaining))
		ctx.Set(common.RateLimitResetHeader, strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			prometheus.RateLimitDecisionsTotal.WithLabelValues("denied").Inc()
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			ctx.Set(common.RetryAfterHeader, strconv.FormatInt(retryAfter, 10))
			return response.Error(ctx, fiber.StatusTooManyRequests,
				response.TypeRateLimitError, "rate limit exceeded")
		}

		prometheus.RateLimitDecisionsTotal.WithLabelValues("allowed").Inc()
		return ctx.Next()
	}
}

func (m *rateLimitMiddleware) resolvePolicy(path string) (int, time.Duration) {
	if setting, ok := m.settings.Endpoints[path]; ok {
		window, err := time.ParseDuration(setting.Window)
		if err == nil && window > 0 {
			return setting.Limit, window
		}
	}
	window, err := time.ParseDuration(m.settings.Default.Window)
	if err != nil || window <= 0 {
		window = common.DefaultRateWindow
	}
	return m.settings.Default.Limit, window
}

func (m *rateLimitMiddleware) resolveKey(ctx *fiber.Ctx, path string) string {
	if accountID, ok := ctx.Locals(common.AccountIdContextKey).(string); ok && accountID != "" {
		return m.keyBuilder.ForAccount(accountID, path)
	}
	if fingerprintID, ok := ctx.Locals(common.FingerprintIdContextKey).(string); ok && fingerprintID != "" {
		return m.keyBuilder.ForFingerprint(fingerprintID, path)
	}
	return m.keyBuilder.ForFingerprint("unknown", path)
}
