package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/protocol"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type HttpServer struct {
	addr   string
	path   string
	logger *zap.Logger
	engine *echo.Echo
}

// NewHttpServer builds the echo engine; v is the validator shared with the
// command line so both surfaces enforce the same rules.
func NewHttpServer(cfg HttpServerConfig, v *validator.Validate) (*HttpServer, error) {
	if cfg.Path != "" && cfg.Path[0] != '/' {
		return nil, errors.New(errors.KindConfig, "the http.path must start with a /")
	}
	if v == nil {
		v = validator.New()
	}
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true
	engine.Validator = &CustomValidator{Validator: v}
	engine.HTTPErrorHandler = errorHandler
	if cfg.Cors {
		engine.Use(Cors())
	}
	if cfg.RequestLog {
		engine.Use(Request())
	}

	srv := &HttpServer{
		logger: logs.GetLogger("httpServer"),
		engine: engine,
		addr:   fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		path:   cfg.Path,
	}
	return srv, nil
}

// errorHandler 统一输出 protocol 信封
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		_ = c.JSON(he.Code, protocol.BaseResponse{
			ErrCode: he.Code,
			ErrMsg:  fmt.Sprint(he.Message),
			Kind:    errors.KindValidation.String(),
		})
		return
	}
	_ = protocol.Response(c, err, nil)
}

func (m *HttpServer) Engine() *echo.Echo {
	return m.engine
}

func (m *HttpServer) Addr() string {
	return m.addr
}

func (m *HttpServer) Use(middleware ...echo.MiddlewareFunc) *HttpServer {
	m.engine.Use(middleware...)
	return m
}

// Startup serves until ctx is done, then shuts the server down gracefully.
func (m *HttpServer) Startup(ctx context.Context) error {
	m.logger.Info("http server listened on:", zap.String("addr", m.addr))
	// 打印路由
	for _, route := range m.engine.Routes() {
		m.logger.Info("http route registered:", logs.String("method", route.Method), logs.String("path", route.Path))
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.engine.Start(m.addr)
	}()
	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(errors.KindNetwork, err, "http server stopped")
	case <-ctx.Done():
		return m.Stop()
	}
}

func (m *HttpServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.engine.Shutdown(ctx); err != nil {
		m.logger.Error("shutdown http server:", zap.Error(err))
		return err
	}
	return nil
}

// Handle registers a new route under <path>/api.
func (m *HttpServer) Handle(method string, path string, handler IHandler) {
	path, _ = url.JoinPath("/", m.path, "api", path)
	m.engine.Add(method, path, handler.GetFunc())
}

func (m *HttpServer) Get(path string, handler IHandler) {
	m.Handle(http.MethodGet, path, handler)
}

func (m *HttpServer) Post(path string, handler IHandler) {
	m.Handle(http.MethodPost, path, handler)
}

// AddNativeHandler mounts h outside the /api prefix (e.g. /metrics).
func (m *HttpServer) AddNativeHandler(method string, path string, h echo.HandlerFunc) {
	path, _ = url.JoinPath("/", m.path, path)
	m.engine.Add(method, path, h)
}
