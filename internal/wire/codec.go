package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Message is satisfied by every wire type that can cross the grpc boundary.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

const codecName = "taskscope-wire"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: %T does not implement wire.Message", v)
	}
	return m.Marshal()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: %T does not implement wire.Message", v)
	}
	return m.Unmarshal(data)
}

func (codec) Name() string { return codecName }

// RegisterCodec installs the hand-written wire codec under the
// "taskscope-wire" content-subtype. Call once at process start, before any
// transport.Dial. Safe to call more than once.
func RegisterCodec() {
	encoding.RegisterCodec(codec{})
}

// CodecName is the content-subtype passed to grpc.CallContentSubtype so
// calls on the connection use this codec instead of the default proto one.
const CodecName = codecName
