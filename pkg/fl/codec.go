package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which the protocol messages
// travel. Clients select it with grpc.CallContentSubtype(CodecName).
const CodecName = "cbor"

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}()

type codec struct{}

func init() {
	encoding.RegisterCodec(codec{})
}

func (codec) Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor: failed to marshal %T: %w", v, err)
	}

	return b, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor: failed to unmarshal %T: %w", v, err)
	}

	return nil
}

func (codec) Name() string {
	return CodecName
}
