package format

import (
	"github.com/joomcode/errorx"
)

var (
	FormatErrors = errorx.NewNamespace("format")

	SyntaxError         = FormatErrors.NewType("syntax")
	MissingBindingError = FormatErrors.NewType("missing_binding")

	ContainerProperty = errorx.RegisterProperty("container")
	PortProperty      = errorx.RegisterProperty("port")
)
