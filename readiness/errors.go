package readiness

import (
	"github.com/joomcode/errorx"
)

var (
	ReadinessErrors = errorx.NewNamespace("readiness")

	TimeoutError   = ReadinessErrors.NewType("timeout")
	CancelledError = ReadinessErrors.NewType("cancelled")
	KindError      = ReadinessErrors.NewType("kind")

	CheckProperty  = errorx.RegisterProperty("check")
	TargetProperty = errorx.RegisterProperty("target")
)
