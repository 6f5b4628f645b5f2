package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jdziat/confinity/pkg/core"
)

var (
	textEncoding  = base64.StdEncoding
	marshalOpts   = proto.MarshalOptions{Deterministic: true}
	unmarshalOpts = proto.UnmarshalOptions{}
)

// Encode serializes v and returns it as base64 text.
func Encode(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return ToText(data), nil
}

// Decode reverses Encode, returning the generic value tree: nil, bool,
// float64, string, []any or map[string]any.
func Decode(text string) (any, error) {
	data, err := FromText(text)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// ToText renders wire bytes as the base64 text carried on the command line
// and inside boundary envelopes.
func ToText(data []byte) string {
	return textEncoding.EncodeToString(data)
}

// FromText reverses ToText.
func FromText(text string) ([]byte, error) {
	data, err := textEncoding.DecodeString(text)
	if err != nil {
		return nil, core.Wrap(core.ErrDecode, "", fmt.Errorf("base64: %w", err))
	}
	return data, nil
}

// Marshal serializes v into wire bytes. NaN and infinite numbers are
// rejected wherever they appear; struct fields could not carry them anyway.
func Marshal(v any) ([]byte, error) {
	val, err := ToValue(v)
	if err != nil {
		return nil, core.Wrap(core.ErrEncode, "", err)
	}
	if err := checkFinite(val); err != nil {
		return nil, core.Wrap(core.ErrEncode, "", err)
	}
	data, err := marshalOpts.Marshal(val)
	if err != nil {
		return nil, core.Wrap(core.ErrEncode, "", err)
	}
	return data, nil
}

// Unmarshal parses wire bytes into the generic value tree.
func Unmarshal(data []byte) (any, error) {
	var val structpb.Value
	if err := unmarshalOpts.Unmarshal(data, &val); err != nil {
		return nil, core.Wrap(core.ErrDecode, "", err)
	}
	if val.GetKind() == nil || len(val.ProtoReflect().GetUnknown()) > 0 {
		return nil, core.Wrap(core.ErrDecode, "", errors.New("stream is not a serialized value"))
	}
	return val.AsInterface(), nil
}

func checkFinite(val *structpb.Value) error {
	switch k := val.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return fmt.Errorf("number %v is not finite", k.NumberValue)
		}
	case *structpb.Value_ListValue:
		for _, item := range k.ListValue.GetValues() {
			if err := checkFinite(item); err != nil {
				return err
			}
		}
	case *structpb.Value_StructValue:
		for key, field := range k.StructValue.GetFields() {
			if err := checkFinite(field); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// ToValue normalizes an arbitrary Go value into a structpb.Value. Byte
// slices become base64 strings, as encoding/json renders them.
func ToValue(v any) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case *structpb.Value:
		if x == nil {
			return structpb.NewNullValue(), nil
		}
		return x, nil
	case proto.Message:
		data, err := protojson.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("protojson: %w", err)
		}
		return fromJSON(data)
	}

	if val, err := structpb.NewValue(v); err == nil {
		return val, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value of type %T is not serializable: %w", v, err)
	}
	return fromJSON(data)
}

func fromJSON(data []byte) (*structpb.Value, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
