package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/jdziat/confinity/pkg/core"
)

var protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// Bind converts a decoded value into a value of type t. Values already
// assignable to t pass through untouched; anything else takes a JSON round
// trip into a fresh t. A value that does not fit fails with ErrInvocationType,
// and so does an object carrying a key that t has no field for.
func Bind(v any, t reflect.Type) (reflect.Value, error) {
	return bind(v, t, true)
}

func bind(v any, t reflect.Type, strict bool) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return reflect.Value{}, core.Wrap(core.ErrInvocationType, "", err)
	}

	if t.Kind() == reflect.Pointer && t.Implements(protoMessageType) {
		msg := reflect.New(t.Elem())
		if err := protojson.Unmarshal(data, msg.Interface().(proto.Message)); err != nil {
			return reflect.Value{}, core.Wrap(core.ErrInvocationType, "", fmt.Errorf("cannot bind to %v: %w", t, err))
		}
		return msg, nil
	}

	ptr := reflect.New(t)
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(ptr.Interface()); err != nil {
		return reflect.Value{}, core.Wrap(core.ErrInvocationType, "", fmt.Errorf("cannot bind to %v: %w", t, err))
	}
	return ptr.Elem(), nil
}

// Into binds a decoded value into the value out points to. Unlike Bind it
// ignores object keys out has no field for, so a caller may read a subset
// of a result.
func Into(v any, out any) error {
	ptr := reflect.ValueOf(out)
	if ptr.Kind() != reflect.Pointer || ptr.IsNil() {
		return fmt.Errorf("codec: Into requires a non-nil pointer, got %T", out)
	}
	bound, err := bind(v, ptr.Type().Elem(), false)
	if err != nil {
		return err
	}
	ptr.Elem().Set(bound)
	return nil
}
