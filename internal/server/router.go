package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/command"
	"github.com/any-hub/intercept-cache/internal/fetch"
	"github.com/any-hub/intercept-cache/internal/gate"
	"github.com/any-hub/intercept-cache/internal/lifecycle"
	"github.com/any-hub/intercept-cache/internal/telemetry"
)

// Interceptor 是拦截闸门的最小接口，测试中可替换为假实现。
type Interceptor interface {
	Intercept(ctx context.Context, req *http.Request) (*http.Response, gate.Decision)
}

// MessageSink 接收已解码的控制消息。
type MessageSink interface {
	Dispatch(ctx context.Context, msg command.Message) error
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger   *logrus.Logger
	Gate     Interceptor
	Fetcher  fetch.Fetcher
	Messages MessageSink
	Metrics  *telemetry.Metrics
	// MetricsHandler 非空时挂载到 /-/metrics。
	MetricsHandler http.Handler
	ListenPort     int
}

const contextKeyRequestID = "_intercept_request_id"

// NewApp builds a Fiber application that serves the control plane under /-/
// and treats every other absolute-form request as a forward-proxy request.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("gate is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Messages == nil {
		return nil, errors.New("message sink is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Post("/-/messages", messagesHandler(opts))
	if opts.MetricsHandler != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.MetricsHandler))
	}

	fwd := &forwarder{
		logger:  opts.Logger,
		gate:    opts.Gate,
		fetcher: opts.Fetcher,
		metrics: opts.Metrics,
	}
	app.All("/*", func(c fiber.Ctx) error {
		if !isProxyRequest(c) {
			if isDiagnosticsPath(string(c.Request().URI().Path())) {
				return c.Next()
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "absolute_uri_required",
			})
		}
		return fwd.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// messagesHandler 投递控制消息。CLEAR_CACHE 在清空完成后才返回 204；
// 其他消息不产生回复，返回 202。
func messagesHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		body := append([]byte(nil), c.Body()...)
		msg := command.Decode(body)
		err := opts.Messages.Dispatch(requestContext(c), msg)

		fields := logrus.Fields{
			"action":     "message",
			"type":       msg.Type(),
			"request_id": RequestID(c),
		}
		if errors.Is(err, lifecycle.ErrNoActiveInstance) {
			opts.Logger.WithFields(fields).Warn("message_rejected")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no_active_instance"})
		}

		if _, ok := msg.(command.ClearCache); ok {
			if err != nil {
				opts.Logger.WithFields(fields).WithError(err).Error("message_failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_clear_failed"})
			}
			return c.SendStatus(fiber.StatusNoContent)
		}
		if err != nil {
			opts.Logger.WithFields(fields).WithError(err).Warn("message_failed")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// isProxyRequest 判断请求行是否为绝对形式（http://host/path）。
func isProxyRequest(c fiber.Ctx) bool {
	raw := c.Request().Header.RequestURI()
	return bytes.HasPrefix(raw, []byte("http://")) || bytes.HasPrefix(raw, []byte("https://"))
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
