package protocol

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgMessagesRequired = "messages[] array is required"
	MsgInvalidMessage   = "messages[] entries must have a valid role and string content"
	MsgMissingAPIKey    = "Server misconfigured: missing API key"
	MsgUpstreamError    = "Upstream model error"
	MsgInternalError    = "Internal server error"
	MsgNotFound         = "Not found"
	FallbackReply       = "Sorry, I couldn't generate a response."
)

// ChatReply is the only successful response shape of the chat endpoint.
type ChatReply struct {
	Reply string `json:"reply"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Status *int   `json:"status,omitempty"`
}

func Reply(c echo.Context, text string) error {
	return c.JSON(http.StatusOK, ChatReply{Reply: text})
}

func Fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, ErrorResponse{Error: msg})
}

// FailUpstream reports a provider failure as 502, carrying the provider's status.
func FailUpstream(c echo.Context, upstreamStatus int) error {
	return c.JSON(http.StatusBadGateway, ErrorResponse{Error: MsgUpstreamError, Status: &upstreamStatus})
}
