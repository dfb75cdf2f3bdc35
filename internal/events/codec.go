package events

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec formats
const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// Codec serializes events for external transports
type Codec interface {
	Encode(e Event) ([]byte, error)
	Decode(data []byte) (Event, error)
	ContentType() string
}

// NewCodec returns the codec for format, optionally snappy-compressed
func NewCodec(format string, compress bool) (Codec, error) {
	var c Codec
	switch format {
	case "", CodecJSON:
		c = jsonCodec{}
	case CodecProto:
		c = protoCodec{}
	default:
		return nil, fmt.Errorf("unsupported event codec: %s", format)
	}

	if compress {
		c = snappyCodec{inner: c}
	}
	return c, nil
}

type jsonCodec struct{}

func (jsonCodec) Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func (jsonCodec) Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}

func (jsonCodec) ContentType() string { return "application/json" }

// protoCodec carries the event as a google.protobuf.Struct so consumers in
// any language can decode it without a generated schema
type protoCodec struct{}

func (protoCodec) Encode(e Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return proto.Marshal(s)
}

func (protoCodec) Decode(data []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return Event{}, err
	}
	return jsonCodec{}.Decode(raw)
}

func (protoCodec) ContentType() string { return "application/x-protobuf" }

type snappyCodec struct {
	inner Codec
}

func (c snappyCodec) Encode(e Event) ([]byte, error) {
	data, err := c.inner.Encode(e)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func (c snappyCodec) Decode(data []byte) (Event, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return Event{}, fmt.Errorf("snappy decompress failed: %w", err)
	}
	return c.inner.Decode(raw)
}

func (c snappyCodec) ContentType() string {
	return c.inner.ContentType() + "+snappy"
}
