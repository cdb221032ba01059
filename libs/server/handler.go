package server

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type CustomValidator struct {
	Validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{Validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.Validator.Struct(i)
}

// Handler binds and validates Req before calling Func. Resp is handed to
// Func zero valued on every call.
type Handler[Req any, Resp any] struct {
	Name string
	Tags []string
	Func func(echo.Context, Req, Resp) error
}

// 抽象接口
type IHandler interface {
	GetName() string
	GetTags() []string
	GetFunc() echo.HandlerFunc
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

func (h *Handler[Req, Resp]) GetName() string {
	return h.Name
}

func (h *Handler[Req, Resp]) GetTags() []string {
	return h.Tags
}

func (h *Handler[Req, Resp]) GetFunc() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Req
		var resp Resp
		// 绑定
		if err := c.Bind(&req); err != nil {
			return err
		}
		// 验证
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(400, err.Error()).SetInternal(err)
		}
		return h.Func(c, req, resp)
	}
}
