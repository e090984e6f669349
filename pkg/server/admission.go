package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gatekit/admission/pkg/config"
	handlers "github.com/gatekit/admission/pkg/handlers/http"
	"github.com/gatekit/admission/pkg/middleware"
)

type (
	AdmissionServerDI struct {
		MiddlewareTransport middleware.Transport
		HandlerTransport    handlers.HandlerTransport
		Config              *config.Config
		Logger              *logrus.Logger
	}
	AdmissionServer struct {
		*BaseServer
		middlewareTransport middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

// NewAdmissionServer serves the decision API: rate limit checks and
// idempotency begin/complete for out-of-process request boundaries. The
// API itself runs behind the same enforcement middleware it exposes.
func NewAdmissionServer(di AdmissionServerDI) *AdmissionServer {
	return &AdmissionServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}
}

func (s *AdmissionServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.WithField("addr", addr).Info("Starting admission server")
	return s.Router.Listen(addr)
}

func (s *AdmissionServer) setupRoutes() {
	if s.middlewareTransport.FingerprintMiddleware != nil {
		s.Router.Use(s.middlewareTransport.FingerprintMiddleware.Middleware())
	}
	if s.middlewareTransport.RateLimitMiddleware != nil {
		s.Router.Use(s.middlewareTransport.RateLimitMiddleware.Middleware())
	}
	if s.middlewareTransport.IdempotencyMiddleware != nil {
		s.Router.Use(s.middlewareTransport.IdempotencyMiddleware.Middleware())
	}

	v1 := s.Router.Group("/api/v1")
	{
		ratelimit := v1.Group("/ratelimit")
		{
			ratelimit.Post("/check", s.handlerTransport.RateLimitCheckHandler.Handle)
		}

		idempotency := v1.Group("/idempotency")
		{
			idempotency.Post("/begin", s.handlerTransport.IdempotencyBeginHandler.Handle)
			idempotency.Post("/complete", s.handlerTransport.IdempotencyCompleteHandler.Handle)
		}
	}
}

func (s *AdmissionServer) Shutdown() error {
	return s.Router.Shutdown()
}
