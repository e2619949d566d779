package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stardustagi/gptshell/utils"
)

// ClientIDKey 客户端标识请求头
const ClientIDKey = "X-Client-Id"

type Context struct {
	echo.Context
	RemoteAddr string
	ClientId   string
	Header     http.Header
}

func NewContext(c echo.Context) *Context {
	ctx := &Context{
		Context:    c,
		RemoteAddr: utils.GetRemoteAddr(c.Request()),
		ClientId:   c.Request().Header.Get(ClientIDKey),
		Header:     c.Request().Header,
	}

	return ctx
}
