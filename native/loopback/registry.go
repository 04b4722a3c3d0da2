package loopback

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/native-bridge/errors"
)

// Module is a struct whose exported methods become native functions.
// A method Foo on a module named "net" is exposed as "net.foo".
//
// Supported method shapes, where P is any JSON-decodable type and R any
// JSON-encodable type:
//
//	func(ctx *Context, params P) (R, error)
//	func(ctx *Context, params P, r *Responder)
//
// The first form finishes the request with its return values. The second
// drives r directly and may send any number of notifications first.
type Module interface {
	// Name returns the module prefix (e.g., "client").
	Name() string
}

// method is a registered handler normalized to the streaming shape.
type method func(ctx *Context, params []byte, r *Responder)

type Registry struct {
	methods map[string]method
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]method),
	}
}

var (
	contextType   = reflect.TypeOf((*Context)(nil))
	responderType = reflect.TypeOf((*Responder)(nil))
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

// RegisterModule registers every exported method of m with a supported
// shape. Methods with other shapes are skipped.
func (r *Registry) RegisterModule(m Module) error {
	name := m.Name()
	if name == "" {
		return errors.InvalidInput(errors.PhaseNative, "module name cannot be empty")
	}

	rv := reflect.ValueOf(m)
	rt := rv.Type()

	found := make(map[string]method)
	for i := 0; i < rt.NumMethod(); i++ {
		mt := rt.Method(i)
		if !mt.IsExported() || mt.Name == "Name" {
			continue
		}
		fn, ok := adapt(rv.Method(i))
		if !ok {
			continue
		}
		found[name+"."+toSnakeCase(mt.Name)] = fn
	}

	if len(found) == 0 {
		return errors.InvalidInput(errors.PhaseNative, "module "+name+" has no callable methods")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for full, fn := range found {
		r.methods[full] = fn
	}
	return nil
}

// RegisterFunc registers fn under the fully qualified name. fn must have
// one of the shapes documented on Module.
func (r *Registry) RegisterFunc(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseNative, "function name cannot be empty")
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return errors.New(errors.PhaseNative, errors.KindInvalidInput).
			Method(name).
			Value(fn).
			Detail("handler must be a function").
			Build()
	}
	m, ok := adapt(rv)
	if !ok {
		return errors.New(errors.PhaseNative, errors.KindUnsupported).
			Method(name).
			Detail("unsupported handler signature %s", rv.Type()).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = m
	return nil
}

func (r *Registry) lookup(name string) (method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func adapt(fn reflect.Value) (method, bool) {
	ft := fn.Type()
	if ft.NumIn() < 2 || ft.In(0) != contextType {
		return nil, false
	}
	paramType := ft.In(1)

	switch {
	case ft.NumIn() == 3 && ft.In(2) == responderType && ft.NumOut() == 0:
		return func(ctx *Context, params []byte, r *Responder) {
			pv, err := decodeParams(paramType, params)
			if err != nil {
				r.Fail(CodeInvalidParams, "Invalid parameters: "+err.Error())
				return
			}
			fn.Call([]reflect.Value{reflect.ValueOf(ctx), pv, reflect.ValueOf(r)})
		}, true

	case ft.NumIn() == 2 && ft.NumOut() == 2 && ft.Out(1) == errorType:
		return func(ctx *Context, params []byte, r *Responder) {
			pv, err := decodeParams(paramType, params)
			if err != nil {
				r.Fail(CodeInvalidParams, "Invalid parameters: "+err.Error())
				return
			}
			out := fn.Call([]reflect.Value{reflect.ValueOf(ctx), pv})
			if errv := out[1]; !errv.IsNil() {
				r.FailWith(errv.Interface().(error))
				return
			}
			r.Result(out[0].Interface())
		}, true
	}
	return nil, false
}

func decodeParams(t reflect.Type, params []byte) (reflect.Value, error) {
	pv := reflect.New(t)
	if len(params) == 0 {
		return pv.Elem(), nil
	}
	if err := json.Unmarshal(params, pv.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return pv.Elem(), nil
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetAPIReference -> get_api_reference
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
