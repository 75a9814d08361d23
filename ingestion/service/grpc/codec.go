package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const codecName = "json"

// JSONCodec carries the ingestion messages as JSON. The gateway already speaks JSON over
// HTTP, so both surfaces share one payload shape and no generated code is needed.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func (JSONCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
