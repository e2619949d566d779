package server

import (
	"github.com/labstack/echo/v4"
)

type Handler[Req any, Resp any] struct {
	Path string // 路径
	Name string
	Tags []string
	Func func(echo.Context, Req, Resp) error
	// init 每个请求的初始参数（默认值）
	init func() Req
}

// 抽象接口
type IHandler interface {
	GetName() string
	GetTags() []string
	GetFunc() func(echo.Context) error
}

func NewHandler[Req any, Resp any](
	name string,
	tags []string,
	f func(echo.Context, Req, Resp) error,
) *Handler[Req, Resp] {
	return &Handler[Req, Resp]{
		Name: name,
		Tags: tags,
		Func: f,
	}
}

// WithDefaults seeds every request with init() before binding, so omitted
// JSON fields keep their defaults.
func (h *Handler[Req, Resp]) WithDefaults(init func() Req) *Handler[Req, Resp] {
	h.init = init
	return h
}

func (h *Handler[Req, Resp]) GetName() string {
	return h.Name
}

func (h *Handler[Req, Resp]) GetTags() []string {
	return h.Tags
}

func (h *Handler[Req, Resp]) GetFunc() func(echo.Context) error {
	return func(c echo.Context) error {
		// 每个请求独立的参数
		var req Req
		var resp Resp
		if h.init != nil {
			req = h.init()
		}
		// 绑定
		if err := c.Bind(&req); err != nil {
			return err
		}
		// 验证
		if err := c.Validate(&req); err != nil {
			return err
		}
		// 执行体
		return h.Func(c, req, resp)
	}
}
