package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 訊息以 JSON 編碼 (content-type: application/grpc+json)
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec 讓 Go struct 直接當作 gRPC 訊息，不需要 protoc 產生程式碼
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}
