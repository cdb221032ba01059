package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

// Cors writes the cross-origin headers on every response. An allow-listed
// Origin is echoed back, anything else gets "*".
func Cors(cfg *CorsConfig) echo.MiddlewareFunc {
	methods := strings.Join(cfg.AllowedMethods, ",")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if cfg.IsOriginAllowed(origin) {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			} else {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			}
			h.Add(echo.HeaderVary, echo.HeaderOrigin)
			h.Set(echo.HeaderAccessControlAllowMethods, methods)
			h.Set(echo.HeaderAccessControlAllowHeaders, headers)
			return next(c)
		}
	}
}

// RequestID keeps an incoming X-Request-ID or assigns a snowflake id.
func RequestID(node *snowflake.Node) echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return node.Generate().String()
		},
	})
}

// Request logs one line per request after the response is written.
func Request(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			ctx := NewContext(c)
			logger.Info("http request",
				logs.String("method", c.Request().Method),
				logs.String("path", c.Request().URL.Path),
				logs.Int("status", c.Response().Status),
				logs.Duration("latency", time.Since(start)),
				logs.String("remote_addr", ctx.RemoteAddr),
				logs.String("request_id", ctx.RequestID))
			return nil
		}
	}
}

// Recover turns a panic anywhere below it into a logged 500 response.
func Recover(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					logs.String("panic", fmt.Sprint(rec)),
					logs.String("path", c.Request().URL.Path),
					logs.String("request_id", NewContext(c).RequestID),
					logs.StacktraceField())
				if c.Response().Committed {
					err = nil
					return
				}
				err = protocol.Fail(c, http.StatusInternalServerError, protocol.MsgInternalError)
			}()
			return next(c)
		}
	}
}

// ErrorHandler renders every error returned by a handler as {error: ...}.
// Messages of 5xx errors are logged but never sent to the client.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := protocol.MsgInternalError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch {
			case code == http.StatusNotFound:
				msg = protocol.MsgNotFound
			case code == http.StatusMethodNotAllowed:
				msg = protocol.MsgMethodNotAllowed
			case code < http.StatusInternalServerError:
				msg = fmt.Sprint(he.Message)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				logs.String("path", c.Request().URL.Path),
				logs.String("request_id", NewContext(c).RequestID),
				logs.ErrorInfo(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = protocol.Fail(c, code, msg)
		}
		if writeErr != nil {
			logger.Warn("failed to write error response", logs.ErrorInfo(writeErr))
		}
	}
}
