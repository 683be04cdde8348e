package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/termcache/termcache/internal/logging"
	"github.com/termcache/termcache/internal/registry"
	"github.com/termcache/termcache/internal/terminology"
)

// Terminologies describes the registry surface the HTTP layer needs. It allows
// injecting fake registries during tests.
type Terminologies interface {
	Load(ctx context.Context, id string) (*terminology.Terminology, error)
	DeferredLoad(id string)
	State(id string) registry.State
	Snapshot() []registry.Status
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger        *logrus.Logger
	Terminologies Terminologies
	ListenPort    int
}

const contextKeyRequestID = "_termcache_request_id"

// NewApp builds a Fiber application with request-ID middleware, access logging
// and JSON error rendering. Routes are attached by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Terminologies == nil {
		return nil, errors.New("terminology registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并在请求结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}
		fields := logging.RequestFields(reqID, c.Method(), c.Path(), status)
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		logger.WithFields(fields).Debug("http_request")
		return err
	}
}

func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal_error"
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}
		if code == fiber.StatusNotFound {
			message = "route_not_found"
		}
		if code >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"action":     "http_error",
				"request_id": RequestID(c),
				"path":       c.Path(),
			}).Error("http_failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
