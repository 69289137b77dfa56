package param

import (
	"sort"
	"strings"
)

type Type int

const (
	String Type = iota
	Number
	Int
	ListOfNumbers
	Bool
	Base64
)

func (t Type) String() string {
	switch t {
	case String:
		return "a string"
	case Number:
		return "a number"
	case Int:
		return "an integer"
	case ListOfNumbers:
		return "a list of numbers"
	case Bool:
		return "a boolean"
	case Base64:
		return "a base64 string"
	}
	return "unknown"
}

// Spec declares one template parameter.
type Spec struct {
	Name     string
	Type     Type
	Required bool
	// Default is used when the parameter is not supplied. It goes through the
	// same type check as a supplied value.
	Default interface{}
}

// Schema is the ordered set of parameters a template accepts.
type Schema []Spec

// Bind checks raw parameters against the schema once and returns the typed
// record handed to template logic.
func (s Schema) Bind(raw map[string]interface{}) (Values, error) {
	declared := make(map[string]struct{}, len(s))
	vals := Values{values: make(map[string]interface{}, len(s))}

	for _, spec := range s {
		declared[spec.Name] = struct{}{}

		v, ok := raw[spec.Name]
		if !ok || !IsDefined(v) {
			if spec.Required {
				return Values{}, ValidationError.New("required parameter %q (%s) is missing", spec.Name, spec.Type).
					WithProperty(NameProperty, spec.Name).
					WithProperty(ExpectedProperty, spec.Type.String())
			}
			if !IsDefined(spec.Default) {
				continue
			}
			v = spec.Default
		}

		typed, err := convert(spec.Name, spec.Type, v)
		if err != nil {
			return Values{}, err
		}
		vals.values[spec.Name] = typed
	}

	var unknown []string
	for k := range raw {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Values{}, ValidationError.New("unknown parameters: %s", strings.Join(unknown, ", ")).
			WithProperty(NameProperty, unknown[0])
	}
	return vals, nil
}

func convert(name string, t Type, v interface{}) (interface{}, error) {
	switch t {
	case String:
		return EnsureString(name, v)
	case Number:
		return EnsureNumber(name, v)
	case Int:
		return EnsureInt(name, v)
	case ListOfNumbers:
		return EnsureListOfNumbers(name, v)
	case Bool:
		return EnsureBool(name, v)
	case Base64:
		return FromBase64(name, v)
	}
	return nil, ValidationError.New("parameter %q has an unknown declared type", name).
		WithProperty(NameProperty, name)
}

// Values is the typed, read-only result of Schema.Bind. Accessors return the
// zero value for parameters that were neither supplied nor defaulted.
type Values struct {
	values map[string]interface{}
}

func (v Values) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

func (v Values) Raw(name string) interface{} {
	return v.values[name]
}

func (v Values) String(name string) string {
	s, _ := v.values[name].(string)
	return s
}

func (v Values) Float(name string) float64 {
	f, _ := v.values[name].(float64)
	return f
}

func (v Values) Int(name string) int {
	switch n := v.values[name].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func (v Values) Ints(name string) []int {
	fs, _ := v.values[name].([]float64)
	ret := make([]int, len(fs))
	for i, f := range fs {
		ret[i] = int(f)
	}
	return ret
}

func (v Values) Bool(name string) bool {
	b, _ := v.values[name].(bool)
	return b
}

// Bytes returns a copy of a decoded base64 parameter.
func (v Values) Bytes(name string) []byte {
	b, _ := v.values[name].([]byte)
	return append([]byte(nil), b...)
}

// Map returns a copy of all bound values, as seen by interpolated files.
func (v Values) Map() map[string]interface{} {
	ret := make(map[string]interface{}, len(v.values))
	for k, val := range v.values {
		ret[k] = val
	}
	return ret
}
