package sandbox

import (
	"github.com/joomcode/errorx"
)

var (
	SandboxErrors = errorx.NewNamespace("sandbox")

	FailedError   = SandboxErrors.NewType("failed")
	PanicError    = SandboxErrors.NewType("panic")
	NotFoundError = SandboxErrors.NewType("not_found")

	TemplateProperty = errorx.RegisterProperty("template")
	IndexProperty    = errorx.RegisterProperty("index")
)
