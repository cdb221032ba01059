package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/option"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type HttpServer struct {
	addr   string
	path   string
	logger *zap.Logger
	engine *echo.Echo
}

func NewHttpServer(opts *option.Options, cors *CorsConfig, node *snowflake.Node, logger *zap.Logger) (*HttpServer, error) {
	if opts.Http.Path != "" && opts.Http.Path[0] != '/' {
		return nil, errors.New("the http.path must start with a /")
	}
	if node == nil {
		return nil, errors.New("snowflake node is required")
	}
	if logger == nil {
		logger = logs.GetLogger("httpServer")
	}
	if cors == nil {
		cors = DefaultCorsConfig(nil)
	}

	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true
	engine.Validator = NewValidator()
	engine.HTTPErrorHandler = ErrorHandler(logger)
	engine.Server.ReadTimeout = time.Duration(opts.Http.ReadTimeout) * time.Second
	engine.Server.WriteTimeout = time.Duration(opts.Http.WriteTimeout) * time.Second
	engine.Server.IdleTimeout = time.Duration(opts.Http.IdleTimeout) * time.Second

	// CORS sits outside Recover so a panic still leaves the headers in place.
	engine.Use(RequestID(node), Cors(cors))
	if opts.Http.RequestLog {
		engine.Use(Request(logger))
	}
	engine.Use(Recover(logger))

	return &HttpServer{
		addr:   fmt.Sprintf("%s:%d", opts.Http.Address, opts.Http.Port),
		path:   opts.Http.Path,
		logger: logger,
		engine: engine,
	}, nil
}

func (m *HttpServer) Engine() *echo.Echo {
	return m.engine
}

func (m *HttpServer) Use(middleware ...echo.MiddlewareFunc) *HttpServer {
	m.engine.Use(middleware...)
	return m
}

// Route returns the full path of an api route, {http.path}/api/{p}.
func (m *HttpServer) Route(p string) string {
	full, err := url.JoinPath(m.path, "api", p)
	if err != nil {
		full = "/api/" + strings.TrimLeft(p, "/")
	}
	if !strings.HasPrefix(full, "/") {
		full = "/" + full
	}
	return full
}

// Handle registers a raw echo handler under the api prefix.
func (m *HttpServer) Handle(method string, path string, handler echo.HandlerFunc) {
	m.engine.Add(method, m.Route(path), handler)
}

// Any routes every method on path to handler, which then owns method dispatch.
func (m *HttpServer) Any(path string, handler echo.HandlerFunc) {
	m.engine.Any(m.Route(path), handler)
}

func (m *HttpServer) Get(path string, handler IHandler) {
	m.Handle(http.MethodGet, path, handler.GetFunc())
}

func (m *HttpServer) Post(path string, handler IHandler) {
	m.Handle(http.MethodPost, path, handler.GetFunc())
}

// Startup serves until ctx is cancelled or the listener fails. A clean
// shutdown returns nil.
func (m *HttpServer) Startup(ctx context.Context) error {
	// 打印路由
	for _, route := range m.engine.Routes() {
		m.logger.Info("http route registered", logs.String("method", route.Method), logs.String("path", route.Path))
	}
	m.logger.Info("http server listening", logs.String("addr", m.addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.engine.Start(m.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return m.Stop(shutdownCtx)
	}
}

func (m *HttpServer) Stop(ctx context.Context) error {
	if err := m.engine.Shutdown(ctx); err != nil {
		m.logger.Error("shutdown http server", logs.ErrorInfo(err))
		return errors.Wrap(err, "shutdown http server")
	}
	m.logger.Info("http server stopped")
	return nil
}
