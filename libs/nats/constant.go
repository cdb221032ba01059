package nats

import (
	"errors"
)

var (
	errEmptySubject = errors.New("empty subject")
	errNotConnected = errors.New("nats connection is closed")
)

// NatsConfig NATS配置结构体
type NatsConfig struct {
	Name     string `json:"name"`
	Url      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}
