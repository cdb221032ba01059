package nats

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"go.uber.org/zap"
)

type NatsConnection struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNatsConnect dials the server. Reconnects are handled by the client in the background.
func NewNatsConnect(natsConfig *NatsConfig, logger *zap.Logger) (*NatsConnection, error) {
	if natsConfig == nil || natsConfig.Url == "" {
		return nil, errors.New("nats url is not configured")
	}
	if logger == nil {
		logger = logs.GetLogger("nats")
	}
	opts := []nats.Option{
		nats.MaxReconnects(10),
		nats.ReconnectWait(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", logs.ErrorInfo(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", logs.String("url", c.ConnectedUrl()))
		}),
	}
	if natsConfig.Name != "" {
		opts = append(opts, nats.Name(natsConfig.Name))
	}
	if natsConfig.Username != "" && natsConfig.Password != "" {
		opts = append(opts, nats.UserInfo(natsConfig.Username, natsConfig.Password))
	}
	conn, err := nats.Connect(natsConfig.Url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", natsConfig.Url)
	}

	return &NatsConnection{
		conn:   conn,
		logger: logger,
	}, nil
}

func (s *NatsConnection) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close drains pending publishes before closing the connection.
func (s *NatsConnection) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn("nats drain failed", logs.ErrorInfo(err))
		s.conn.Close()
	}
}
