package tpl

import (
	"github.com/joomcode/errorx"
)

var (
	TplErrors = errorx.NewNamespace("tpl")

	ConflictError     = TplErrors.NewType("conflict")
	PreconditionError = TplErrors.NewType("precondition")
	BundleError       = TplErrors.NewType("bundle")

	ImageProperty     = errorx.RegisterProperty("image")
	ContainerProperty = errorx.RegisterProperty("container")
)
