package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stardustagi/ChatRelay/utils"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"resty.dev/v3"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// ErrMissingAPIKey is returned before any network traffic when no credential is configured.
var ErrMissingAPIKey = errors.New("completion provider API key is not configured")

// UpstreamError reports a completion call that failed in transport or returned a non-2xx status.
// Status is 0 when no HTTP response was received.
type UpstreamError struct {
	Status  int
	Message string
	Body    string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call was abandoned because a deadline expired.
func (e *UpstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Completer produces the next assistant message for a conversation.
type Completer interface {
	Complete(ctx context.Context, req *models.ChatRequest) (*Completion, error)
}

type OpenAIClient struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

func NewOpenAIClient(cfg ClientConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = logs.GetLogger("openai")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		client:  resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

func (c *OpenAIClient) Close() error {
	return c.client.Close()
}

// Complete performs exactly one chat completion round trip.
func (c *OpenAIClient) Complete(ctx context.Context, req *models.ChatRequest) (*Completion, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode chat request")
	}

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/chat/completions")
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode()
		}
		return nil, &UpstreamError{Status: status, Err: err}
	}

	c.logger.Debug("chat completion finished",
		logs.String("model", req.Model),
		logs.Int("messages", len(req.Messages)),
		logs.Int("status", resp.StatusCode()),
		logs.Duration("elapsed", time.Since(start)))

	if !utils.IsSuccess(resp.StatusCode()) {
		message, raw := ReadErrorBody(resp.Bytes())
		return nil, &UpstreamError{Status: resp.StatusCode(), Message: message, Body: raw}
	}
	return &Completion{Body: resp.Bytes()}, nil
}

// ReadErrorBody interprets an upstream error payload: JSON first, then plain
// text, otherwise absent. It never fails.
func ReadErrorBody(body []byte) (message string, raw string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}
	if gjson.Valid(trimmed) {
		parsed := gjson.Parse(trimmed)
		for _, path := range []string{"error.message", "error", "message"} {
			if v := parsed.Get(path); v.Type == gjson.String && v.Str != "" {
				return v.Str, trimmed
			}
		}
		return parsed.Raw, trimmed
	}
	if utf8.ValidString(trimmed) {
		return trimmed, trimmed
	}
	return "", ""
}

// Completion wraps a successful provider response body.
type Completion struct {
	Body []byte
}

// Text returns the first choice's message content, trimmed. Missing or
// non-string content yields "".
func (c *Completion) Text() string {
	if c == nil {
		return ""
	}
	v := gjson.GetBytes(c.Body, "choices.0.message.content")
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.Str)
}

func (c *Completion) TotalTokens() int64 {
	if c == nil {
		return 0
	}
	return gjson.GetBytes(c.Body, "usage.total_tokens").Int()
}
