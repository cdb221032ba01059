package server

import (
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/utils"
)

type Context struct {
	echo.Context
	RemoteAddr string
	RequestID  string
}

func NewContext(c echo.Context) *Context {
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	return &Context{
		Context:    c,
		RemoteAddr: utils.GetRemoteAddr(c.Request()),
		RequestID:  requestID,
	}
}
