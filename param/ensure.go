package param

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"reflect"
)

// EnsureString checks that v is a string.
func EnsureString(name string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid(name, String, v)
	}
	return s, nil
}

// EnsureNumber checks that v is any kind of Go number (or a json.Number)
// and returns it as a float64.
func EnsureNumber(name string, v interface{}) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, invalid(name, Number, v)
	}
	return f, nil
}

// EnsureInt is EnsureNumber restricted to integral values.
func EnsureInt(name string, v interface{}) (int, error) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, invalid(name, Int, v)
	}
	return int(f), nil
}

// EnsureListOfNumbers accepts []interface{} holding numbers as well as typed
// numeric slices ([]int, []float64, ...).
func EnsureListOfNumbers(name string, v interface{}) ([]float64, error) {
	if v == nil {
		return nil, invalid(name, ListOfNumbers, v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalid(name, ListOfNumbers, v)
	}
	ret := make([]float64, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		f, ok := toFloat(rv.Index(i).Interface())
		if !ok {
			return nil, ValidationError.New("parameter %q must be %s, element %d is %T",
				name, ListOfNumbers, i, rv.Index(i).Interface()).
				WithProperty(NameProperty, name).
				WithProperty(ExpectedProperty, ListOfNumbers.String())
		}
		ret[i] = f
	}
	return ret, nil
}

func EnsureBool(name string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, invalid(name, Bool, v)
	}
	return b, nil
}

// IsDefined reports whether an optional parameter was supplied.
func IsDefined(v interface{}) bool {
	return v != nil
}

// FromBase64 decodes a base64-encoded string parameter. Malformed input
// yields no bytes at all.
func FromBase64(name string, v interface{}) ([]byte, error) {
	s, err := EnsureString(name, v)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, DecodeError.Wrap(err, "parameter %q is not valid base64", name).
			WithProperty(NameProperty, name).
			WithProperty(ExpectedProperty, Base64.String())
	}
	return data, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
