// Package handler provides reflection-based target dispatch for the confinity package.
package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/jdziat/confinity/pkg/core"
)

// DispatchMethod is the name of the single method a target must expose.
const DispatchMethod = "Invoke"

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler holds the resolved constructor and dispatch method of a target.
type Handler struct {
	Name         string
	InstanceType reflect.Type
	ArgsType     reflect.Type
	ResultType   reflect.Type // nil when Invoke returns no value
	HasContext   bool
	HasError     bool

	construct   func() (reflect.Value, error)
	methodIndex int
	methodType  reflect.Type
}

// NewHandler validates factory and the Invoke method of the type it builds.
//
// factory is either a zero-argument constructor, func() T or func() (T, error),
// or a prototype value such as Echo{} or &Echo{}, in which case new instances
// are allocated with reflect.New. The instance must have exactly one method
// named Invoke with one of the signatures
//
//	Invoke(P)
//	Invoke(P) R
//	Invoke(P) error
//	Invoke(P) (R, error)
//
// optionally preceded by a context.Context parameter.
func NewHandler(name string, factory any) (*Handler, error) {
	if factory == nil {
		return nil, notConstructible(name, "factory cannot be nil")
	}

	h := &Handler{Name: name}
	fv := reflect.ValueOf(factory)

	if fv.Kind() == reflect.Func {
		if err := h.parseConstructor(fv); err != nil {
			return nil, err
		}
	} else if err := h.parsePrototype(fv.Type()); err != nil {
		return nil, err
	}

	if err := h.parseMethod(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) parseConstructor(fv reflect.Value) error {
	if fv.IsNil() {
		return notConstructible(h.Name, "constructor function cannot be nil")
	}

	ft := fv.Type()
	if ft.NumIn() != 0 {
		return notConstructible(h.Name, "constructor must take no arguments, takes %d", ft.NumIn())
	}

	withErr := false
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) == errorType {
			return notConstructible(h.Name, "constructor must return an instance")
		}
	case 2:
		if ft.Out(1) != errorType {
			return notConstructible(h.Name, "constructor must return (T, error)")
		}
		withErr = true
	default:
		return notConstructible(h.Name, "constructor must return T or (T, error)")
	}

	h.InstanceType = ft.Out(0)
	h.construct = func() (reflect.Value, error) {
		out := fv.Call(nil)
		if withErr && !out[1].IsNil() {
			return reflect.Value{}, out[1].Interface().(error)
		}
		inst := out[0]
		if isNilable(inst.Kind()) && inst.IsNil() {
			return reflect.Value{}, errors.New("constructor returned nil")
		}
		return inst, nil
	}
	return nil
}

func (h *Handler) parsePrototype(t reflect.Type) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer, reflect.Pointer:
		return notConstructible(h.Name, "type %v has no zero-argument constructor", t)
	}

	h.InstanceType = reflect.PointerTo(t)
	h.construct = func() (reflect.Value, error) {
		return reflect.New(t), nil
	}
	return nil
}

func (h *Handler) parseMethod() error {
	m, ok := h.InstanceType.MethodByName(DispatchMethod)
	if !ok {
		return dispatchNotFound(h.Name, "type %v has no exported %s method", h.InstanceType, DispatchMethod)
	}

	mt := m.Type
	off := 1 // receiver
	if h.InstanceType.Kind() == reflect.Interface {
		off = 0
	}

	if mt.IsVariadic() {
		return dispatchNotFound(h.Name, "%s must not be variadic", DispatchMethod)
	}

	switch mt.NumIn() - off {
	case 1:
		if mt.In(off) == contextType {
			return dispatchNotFound(h.Name, "%s must accept a payload parameter", DispatchMethod)
		}
		h.ArgsType = mt.In(off)
	case 2:
		if mt.In(off) != contextType {
			return dispatchNotFound(h.Name, "%s with two parameters must take context.Context first", DispatchMethod)
		}
		h.HasContext = true
		h.ArgsType = mt.In(off + 1)
	default:
		return dispatchNotFound(h.Name, "%s must accept exactly one payload parameter, accepts %d", DispatchMethod, mt.NumIn()-off)
	}

	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) == errorType {
			h.HasError = true
		} else {
			h.ResultType = mt.Out(0)
		}
	case 2:
		if mt.Out(1) != errorType {
			return dispatchNotFound(h.Name, "%s must return (R, error)", DispatchMethod)
		}
		h.ResultType = mt.Out(0)
		h.HasError = true
	default:
		return dispatchNotFound(h.Name, "%s must return at most (R, error)", DispatchMethod)
	}

	h.methodIndex = m.Index
	h.methodType = mt
	return nil
}

// Construct builds a new target instance. Failures and panics are
// classified as core.ErrConstruction.
func (h *Handler) Construct() (inst reflect.Value, err error) {
	if h.construct == nil {
		return reflect.Value{}, core.Wrap(core.ErrConstruction, h.Name, errors.New("handler is not initialized"))
	}

	defer func() {
		if r := recover(); r != nil {
			err = &core.Error{Kind: core.ErrConstruction, Target: h.Name, Err: &core.PanicError{Value: r}, Stack: debug.Stack()}
		}
	}()

	inst, err = h.construct()
	if err != nil {
		return reflect.Value{}, core.Wrap(core.ErrConstruction, h.Name, err)
	}
	return inst, nil
}

// Call invokes the dispatch method on inst with arg, which must already be
// of ArgsType. Errors returned by the target and panics are classified as
// core.ErrTargetInvocation.
func (h *Handler) Call(ctx context.Context, inst reflect.Value, arg reflect.Value) (result any, err error) {
	if !inst.IsValid() {
		return nil, core.Wrap(core.ErrTargetInvocation, h.Name, errors.New("instance is nil or invalid"))
	}

	var args []reflect.Value
	if h.HasContext {
		if ctx == nil {
			ctx = context.Background()
		}
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, arg)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &core.Error{Kind: core.ErrTargetInvocation, Target: h.Name, Err: &core.PanicError{Value: r}, Stack: debug.Stack()}
		}
	}()

	out := inst.Method(h.methodIndex).Call(args)

	if h.HasError {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, core.Wrap(core.ErrTargetInvocation, h.Name, errVal.Interface().(error))
		}
	}
	if h.ResultType == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// Signature renders the dispatch method for diagnostics, e.g.
// "Invoke(context.Context, targets.AddArgs) (int, error)".
func (h *Handler) Signature() string {
	params := []string{h.ArgsType.String()}
	if h.HasContext {
		params = append([]string{contextType.String()}, params...)
	}

	var results []string
	if h.ResultType != nil {
		results = append(results, h.ResultType.String())
	}
	if h.HasError {
		results = append(results, errorType.String())
	}

	sig := fmt.Sprintf("%s(%s)", DispatchMethod, strings.Join(params, ", "))
	switch len(results) {
	case 0:
		return sig
	case 1:
		return sig + " " + results[0]
	default:
		return sig + " (" + strings.Join(results, ", ") + ")"
	}
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func notConstructible(name, format string, args ...any) error {
	return core.Wrap(core.ErrNotConstructible, name, fmt.Errorf(format, args...))
}

func dispatchNotFound(name, format string, args ...any) error {
	return core.Wrap(core.ErrDispatchMethodNotFound, name, fmt.Errorf(format, args...))
}
