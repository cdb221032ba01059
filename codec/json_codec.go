package codec

import (
	"github.com/stardustagi/ChatRelay/utils"
)

type ICodec interface {
	Decode(data []byte) (IMessage, error)
	Encode(message IMessage) ([]byte, error)
}

type JsonCodec struct {
}

func NewJsonCodec() ICodec {
	return &JsonCodec{}
}

func (c *JsonCodec) Decode(data []byte) (IMessage, error) {
	msg, err := utils.Bytes2Struct[Message](data)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *JsonCodec) Encode(message IMessage) ([]byte, error) {
	return utils.Struct2Bytes(message)
}
