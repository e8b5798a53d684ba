// Package abi describes the messages a contract accepts and turns
// function-style calls into the tagged JSON messages the contract decodes.
package abi

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/govm-net/counter/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the entry point a function belongs to.
type Kind string

const (
	KindInstantiate Kind = "instantiate"
	KindExecute     Kind = "execute"
	KindQuery       Kind = "query"
)

// Param is a single named input of a function.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Function is one message variant.
type Function struct {
	Name   string  `json:"name"`
	Kind   Kind    `json:"kind"`
	Inputs []Param `json:"inputs"`
	Output string  `json:"output,omitempty"`
}

// ABI lists every message variant a contract understands.
type ABI struct {
	Contract  string     `json:"contract"`
	Functions []Function `json:"functions"`
}

var (
	lower = cases.Lower(language.English)
	title = cases.Title(language.English)
)

// CanonicalName maps "Increment", "increment" or "ResetCounter" to the
// snake_case variant key used on the wire.
func CanonicalName(name string) string {
	var sb strings.Builder
	for i, r := range strings.TrimSpace(name) {
		if r == '-' || r == ' ' {
			sb.WriteByte('_')
			continue
		}
		if i > 0 && r >= 'A' && r <= 'Z' {
			sb.WriteByte('_')
		}
		sb.WriteRune(r)
	}
	return lower.String(sb.String())
}

// DisplayName renders a variant key for humans, e.g. "reset" → "Reset".
func DisplayName(name string) string {
	return title.String(strings.ReplaceAll(name, "_", " "))
}

// FromMessages builds an ABI by reflecting over the message types. instantiate
// is a plain struct; execute and query are tagged unions whose pointer
// fields are the variants. outputs maps query variant names to the response
// value they return.
func FromMessages(contract string, instantiate, execute, query any, outputs map[string]any) *ABI {
	a := &ABI{Contract: contract}
	a.Functions = append(a.Functions, Function{
		Name:   string(KindInstantiate),
		Kind:   KindInstantiate,
		Inputs: params(reflect.TypeOf(instantiate)),
	})
	a.Functions = append(a.Functions, variants(KindExecute, reflect.TypeOf(execute), nil)...)
	a.Functions = append(a.Functions, variants(KindQuery, reflect.TypeOf(query), outputs)...)
	return a
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

func params(t reflect.Type) []Param {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := []Param{}
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" {
			continue
		}
		out = append(out, Param{Name: jsonName(f), Type: f.Type.String()})
	}
	return out
}

func variants(kind Kind, t reflect.Type, outputs map[string]any) []Function {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []Function
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		fn := Function{
			Name:   jsonName(f),
			Kind:   kind,
			Inputs: params(f.Type),
		}
		if v, ok := outputs[fn.Name]; ok {
			fn.Output = reflect.TypeOf(v).String()
		}
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a function by kind and (non-canonical) name.
func (a *ABI) Lookup(kind Kind, name string) (Function, bool) {
	name = CanonicalName(name)
	for _, fn := range a.Functions {
		if fn.Kind == kind && fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// BuildMessage encodes a function-style call as a tagged message. For the
// instantiate kind the arguments form the message body itself.
func (a *ABI) BuildMessage(kind Kind, name string, args map[string]any) ([]byte, error) {
	if kind == KindInstantiate {
		name = string(KindInstantiate)
	}
	fn, ok := a.Lookup(kind, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s function %q", core.ErrInvalidMessage, a.Contract, kind, name)
	}
	body := make(map[string]any, len(args))
	for key, value := range args {
		if !fn.hasInput(key) {
			return nil, fmt.Errorf("%w: %s does not take argument %q", core.ErrInvalidMessage, fn.Name, key)
		}
		body[key] = value
	}
	for _, in := range fn.Inputs {
		if body[in.Name] == nil {
			return nil, fmt.Errorf("%w: %s requires argument %q", core.ErrInvalidMessage, fn.Name, in.Name)
		}
	}
	if kind == KindInstantiate {
		return json.Marshal(body)
	}
	return json.Marshal(map[string]any{fn.Name: body})
}

func (fn Function) hasInput(name string) bool {
	for _, in := range fn.Inputs {
		if in.Name == name {
			return true
		}
	}
	return false
}
