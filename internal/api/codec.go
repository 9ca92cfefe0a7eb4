package api

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// codec encodes outbound messages for one connection. Inbound commands are
// always JSON.
type codec interface {
	Name() string
	Encode(msg any) (data []byte, messageType int, err error)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(msg any) ([]byte, int, error) {
	data, err := json.Marshal(msg)
	return data, websocket.TextMessage, err
}

// msgpackCodec sends binary frames. Field names follow the json tags so
// both codecs produce the same keys.
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(msg any) ([]byte, int, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(msg); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), websocket.BinaryMessage, nil
}

// codecFor picks the codec named by the ?codec= query parameter.
func codecFor(name string) codec {
	if name == "msgpack" {
		return msgpackCodec{}
	}
	return jsonCodec{}
}
