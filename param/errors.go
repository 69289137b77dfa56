package param

import (
	"github.com/joomcode/errorx"
)

var (
	ParamErrors = errorx.NewNamespace("param")

	ValidationError = ParamErrors.NewType("validation")
	DecodeError     = ParamErrors.NewType("decode")

	NameProperty     = errorx.RegisterProperty("param")
	ExpectedProperty = errorx.RegisterProperty("expected")
)

func invalid(name string, expected Type, v interface{}) *errorx.Error {
	return ValidationError.New("parameter %q must be %s, got %T", name, expected, v).
		WithProperty(NameProperty, name).
		WithProperty(ExpectedProperty, expected.String())
}
