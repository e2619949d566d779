package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stardustagi/gptshell/libs/logs"
)

func Cors() echo.MiddlewareFunc {
	return middleware.CORS()
}

// Request 记录每个请求的方法、路径、状态和耗时
func Request() echo.MiddlewareFunc {
	logger := logs.GetLogger("httpRequest")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := NewContext(c)
			logger.Info("request",
				logs.String("method", v.Method),
				logs.String("uri", v.URI),
				logs.Int("status", v.Status),
				logs.Duration("latency", v.Latency),
				logs.String("remote", ctx.RemoteAddr),
				logs.String("client_id", ctx.ClientId),
				logs.ErrorInfo(v.Error))
			return nil
		},
	})
}
