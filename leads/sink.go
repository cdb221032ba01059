package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/codec"
	"github.com/stardustagi/ChatRelay/utils"
	"resty.dev/v3"
)

const (
	SecretHeader    = "X-Lead-Secret"
	SignatureHeader = "X-Lead-Signature"
	MsgIDHeader     = "Nats-Msg-Id"
)

type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// WebhookSink POSTs {ts, ...lead} to an HTTP endpoint. The response body is ignored.
type WebhookSink struct {
	url    string
	secret string
	client *resty.Client
}

func NewWebhookSink(url, secret string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: secret,
		client: resty.New().SetTimeout(timeout),
	}
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode lead")
	}

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if s.secret != "" {
		req.SetHeader(SecretHeader, s.secret)
		req.SetHeader(SignatureHeader, utils.GenerateHMAC(string(body), s.secret))
	}

	resp, err := req.Post(s.url)
	if err != nil {
		return errors.Wrap(err, "post lead webhook")
	}
	if !utils.IsSuccess(resp.StatusCode()) {
		return fmt.Errorf("lead webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (s *WebhookSink) Close() error {
	return s.client.Close()
}

type publisher interface {
	PublishWithHeader(subject string, data []byte, header map[string]string) error
}

// NatsSink publishes each lead wrapped in a codec envelope. Nats-Msg-Id is a
// name based uuid of the encoded event, so a redelivered event keeps its id
// and JetStream can drop the duplicate.
type NatsSink struct {
	conn    publisher
	subject string
	codec   codec.ICodec
}

func NewNatsSink(conn publisher, subject string) *NatsSink {
	return &NatsSink{
		conn:    conn,
		subject: subject,
		codec:   codec.NewJsonCodec(),
	}
}

func (s *NatsSink) Name() string {
	return "nats"
}

func (s *NatsSink) Send(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode lead")
	}
	msg, err := codec.NewJsonMessage("leads", "captured", json.RawMessage(payload))
	if err != nil {
		return errors.Wrap(err, "encode lead")
	}
	data, err := s.codec.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return s.conn.PublishWithHeader(s.subject, data, map[string]string{
		MsgIDHeader: MessageID(payload),
	})
}

// MessageID derives the de-duplication id of an encoded event.
func MessageID(payload []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, payload).String()
}
