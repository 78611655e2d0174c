package shape

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal shapes encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("shape: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalClass serializes a ClassShape to CBOR bytes.
func MarshalClass(c *ClassShape) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalClass deserializes a ClassShape from CBOR bytes.
func UnmarshalClass(data []byte) (*ClassShape, error) {
	var c ClassShape
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("shape: unmarshal class: %w", err)
	}
	return &c, nil
}

// MarshalFunction serializes a FunctionShape to CBOR bytes.
func MarshalFunction(f *FunctionShape) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// UnmarshalFunction deserializes a FunctionShape from CBOR bytes.
func UnmarshalFunction(data []byte) (*FunctionShape, error) {
	var f FunctionShape
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("shape: unmarshal function: %w", err)
	}
	return &f, nil
}

// MarshalEngine serializes an EngineShape to CBOR bytes.
func MarshalEngine(e *EngineShape) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEngine deserializes an EngineShape from CBOR bytes.
func UnmarshalEngine(data []byte) (*EngineShape, error) {
	var e EngineShape
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("shape: unmarshal engine: %w", err)
	}
	return &e, nil
}
