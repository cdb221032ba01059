package codec

import (
	"encoding/json"
)

// Message is the envelope published on message subjects. Payload carries the
// JSON document verbatim.
type Message struct {
	Main    string          `json:"main"`
	Sub     string          `json:"sub"`
	Payload json.RawMessage `json:"payload"`
}

type IMessage interface {
	GetPayload() json.RawMessage
	GetMain() string
	GetSub() string
}

func (m *Message) GetPayload() json.RawMessage {
	return m.Payload
}

func (m *Message) GetMain() string {
	return m.Main
}

func (m *Message) GetSub() string {
	return m.Sub
}

// NewJsonMessage wraps data as the payload of a new envelope.
func NewJsonMessage[T any](main, sub string, data T) (IMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Main:    main,
		Sub:     sub,
		Payload: payload,
	}, nil
}
