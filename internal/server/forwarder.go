package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/fetch"
	"github.com/any-hub/intercept-cache/internal/gate"
	"github.com/any-hub/intercept-cache/internal/logging"
	"github.com/any-hub/intercept-cache/internal/telemetry"
)

// forwarder 处理正向代理请求：先经过拦截闸门，未被拦截的请求直接回源。
type forwarder struct {
	logger  *logrus.Logger
	gate    Interceptor
	fetcher fetch.Fetcher
	metrics *telemetry.Metrics
}

// Handle 重建 *http.Request 并写回最终响应。
func (f *forwarder) Handle(c fiber.Ctx) (err error) {
	started := time.Now()
	requestID := RequestID(c)
	defer func() {
		if r := recover(); r != nil {
			err = f.respondPanic(c, r, requestID)
		}
	}()

	req, err := buildRequest(c)
	if err != nil {
		f.logForward(c, nil, gate.Decision(""), 0, started, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	resp, decision := f.gate.Intercept(req.Context(), req)
	if resp == nil {
		f.metrics.Passthrough(string(decision))
		resp, err = f.fetcher.Fetch(req.Context(), req)
		if err != nil {
			f.logForward(c, req, decision, 0, started, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
		}
	}
	defer resp.Body.Close()

	status := writeResponse(c, resp)
	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	f.logForward(c, req, decision, status, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// buildRequest 从绝对形式的请求行重建出站请求。
func buildRequest(c fiber.Ctx) (*http.Request, error) {
	target := string(c.Request().URI().FullURI())
	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(append([]byte(nil), raw...))
	}
	req, err := http.NewRequestWithContext(requestContext(c), c.Method(), target, body)
	if err != nil {
		return nil, err
	}
	req.Header = fiberHeadersAsHTTP(c)
	req.Header.Del(fiber.HeaderHost)
	return req, nil
}

// writeResponse 写入状态码与响应头，返回实际写出的状态码。
// 不透明响应（状态码 0）以 200 写出且不带任何响应头。
func writeResponse(c fiber.Ctx, resp *http.Response) int {
	if fetch.IsOpaque(resp) {
		c.Response().Header.SetNoDefaultContentType(true)
		c.Status(fiber.StatusOK)
		return fiber.StatusOK
	}
	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)
	return resp.StatusCode
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if fetch.IsHopByHopHeader(key) || key == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

func (f *forwarder) respondPanic(c fiber.Ctx, recovered interface{}, requestID string) error {
	f.logger.WithFields(logrus.Fields{
		"action":     "forward",
		"request_id": requestID,
		"error":      fmt.Sprintf("panic: %v", recovered),
	}).Error("forward_panic")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "forward_panic"})
}

func (f *forwarder) logForward(c fiber.Ctx, req *http.Request, decision gate.Decision, status int, started time.Time, err error) {
	var fields logrus.Fields
	if req != nil {
		fields = logging.RequestFields(req.Method, req.URL.String(), "", string(decision), false)
	} else {
		fields = logrus.Fields{"method": c.Method()}
	}
	fields["action"] = "forward"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID := RequestID(c); requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		f.logger.WithFields(fields).Error("forward_failed")
		return
	}
	f.logger.WithFields(fields).Info("forward_complete")
}
