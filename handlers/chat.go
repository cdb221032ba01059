package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/leads"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/llm/clients"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/protocol"
	"go.uber.org/zap"
)

const (
	maxBodyBytes      = 1 << 20
	maxLoggedBodySize = 2048
)

// ChatConfig holds the per-process values every chat request uses.
type ChatConfig struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	// APIKeyConfigured is false when no provider credential was supplied at startup.
	APIKeyConfigured bool
}

// LeadSubmitter accepts a lead for background delivery. It must not block.
type LeadSubmitter interface {
	Submit(lead leads.Lead) bool
}

type ChatHandler struct {
	cfg       ChatConfig
	completer clients.Completer
	leads     LeadSubmitter
	logger    *zap.Logger
}

func NewChatHandler(cfg ChatConfig, completer clients.Completer, submitter LeadSubmitter, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = logs.GetLogger("chat")
	}
	return &ChatHandler{
		cfg:       cfg,
		completer: completer,
		leads:     submitter,
		logger:    logger,
	}
}

type chatBody struct {
	Messages json.RawMessage `json:"messages"`
	Lead     json.RawMessage `json:"lead"`
}

type chatMessages struct {
	Messages []models.ChatMessage `validate:"dive"`
}

// Handle serves every method on the chat route.
func (h *ChatHandler) Handle(c echo.Context) error {
	req := c.Request()
	switch req.Method {
	case http.MethodOptions:
		return c.NoContent(http.StatusOK)
	case http.MethodPost:
	default:
		c.Response().Header().Set(echo.HeaderAllow, "POST, OPTIONS")
		return protocol.Fail(c, http.StatusMethodNotAllowed, protocol.MsgMethodNotAllowed)
	}

	sc := server.NewContext(c)
	logger := h.logger.With(logs.String("request_id", sc.RequestID))

	body, err := readBody(req)
	if err != nil {
		logger.Info("unreadable chat request body", logs.ErrorInfo(err))
		return protocol.Fail(c, http.StatusBadRequest, protocol.MsgMessagesRequired)
	}
	history, msg := parseMessages(body.Messages)
	if msg != "" {
		logger.Info("rejected chat request", logs.String("reason", msg))
		return protocol.Fail(c, http.StatusBadRequest, msg)
	}
	if err := c.Validate(&chatMessages{Messages: history}); err != nil {
		logger.Info("rejected chat request", logs.ErrorInfo(err))
		return protocol.Fail(c, http.StatusBadRequest, protocol.MsgInvalidMessage)
	}

	if !h.cfg.APIKeyConfigured {
		logger.Error("completion provider API key is not configured")
		return protocol.Fail(c, http.StatusInternalServerError, protocol.MsgMissingAPIKey)
	}

	if lead := leads.ParseLead(body.Lead); leads.HasContact(lead) && h.leads != nil {
		h.leads.Submit(lead)
	}

	chatReq := models.NewChatRequest(h.cfg.Model, h.cfg.Temperature, h.cfg.SystemPrompt, history)
	completion, err := h.completer.Complete(req.Context(), chatReq)
	if err != nil {
		return h.failCompletion(c, logger, err)
	}

	text := completion.Text()
	if text == "" {
		logger.Warn("completion carried no reply text, using fallback")
		text = protocol.FallbackReply
	}
	logger.Debug("chat reply sent",
		logs.Int("history", len(history)),
		logs.Int64("total_tokens", completion.TotalTokens()))
	return protocol.Reply(c, text)
}

func (h *ChatHandler) failCompletion(c echo.Context, logger *zap.Logger, err error) error {
	if errors.Is(err, clients.ErrMissingAPIKey) {
		logger.Error("completion provider API key is not configured")
		return protocol.Fail(c, http.StatusInternalServerError, protocol.MsgMissingAPIKey)
	}
	var upstream *clients.UpstreamError
	if errors.As(err, &upstream) {
		logger.Error("upstream model error",
			logs.Int("status", upstream.Status),
			logs.Bool("timeout", upstream.Timeout()),
			logs.String("message", upstream.Message),
			logs.Truncate("body", upstream.Body, maxLoggedBodySize),
			logs.ErrorInfo(upstream.Err))
		return protocol.FailUpstream(c, upstream.Status)
	}
	logger.Error("chat completion failed", logs.ErrorInfo(err))
	return protocol.Fail(c, http.StatusInternalServerError, protocol.MsgInternalError)
}

// readBody decodes the request into its raw top level fields. An empty body
// decodes to an empty chatBody.
func readBody(req *http.Request) (*chatBody, error) {
	var body chatBody
	if req.Body == nil {
		return &body, nil
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &body, nil
	}
	if data[0] != '{' {
		return &body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	return &body, nil
}

// parseMessages returns the caller history, or the client error message to send.
func parseMessages(raw json.RawMessage) ([]models.ChatMessage, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, protocol.MsgMessagesRequired
	}
	history := []models.ChatMessage{}
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, protocol.MsgInvalidMessage
	}
	return history, ""
}

type healthResp struct {
	Status string `json:"status"`
}

// NewHealthHandler reports liveness only; it never calls the provider.
func NewHealthHandler() server.IHandler {
	return server.NewHandler("health", []string{"ops"},
		func(c echo.Context, _ struct{}, resp healthResp) error {
			resp.Status = "ok"
			return c.JSON(http.StatusOK, resp)
		})
}
