package transport

import (
	"fmt"
)

// Message is implemented by both stream directions.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

// Codec plugs the hand-written message encoding into gRPC. It is named
// "proto" because the produced bytes are plain protobuf.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("transport codec cannot marshal %T", v)
	}

	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("transport codec cannot unmarshal into %T", v)
	}

	return m.Unmarshal(data)
}

func (Codec) Name() string {
	return "proto"
}

// Frame is an undecoded message. Receiving frames keeps decode failures out
// of the gRPC layer, where they would terminate the stream.
type Frame []byte

func (f Frame) Marshal() ([]byte, error) {
	return f, nil
}

func (f *Frame) Unmarshal(b []byte) error {
	*f = append((*f)[:0], b...)

	return nil
}
