package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/stardustagi/ChatRelay/libs/logs"
)

func (s *NatsConnection) Publish(subject string, data []byte) error {
	return s.PublishWithHeader(subject, data, nil)
}

// PublishWithHeader publishes data with optional headers such as Nats-Msg-Id.
func (s *NatsConnection) PublishWithHeader(subject string, data []byte, header map[string]string) error {
	if subject == "" {
		return errEmptySubject
	}
	if s.conn == nil || s.conn.IsClosed() {
		return errNotConnected
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range header {
		msg.Header.Set(k, v)
	}
	err := s.conn.PublishMsg(msg)
	if err != nil {
		s.logger.Error("Failed to publish message",
			logs.String("subject", subject),
			logs.ErrorInfo(err))
	}
	return err
}
