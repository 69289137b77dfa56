package env

import (
	"github.com/joomcode/errorx"
)

var (
	EnvErrors = errorx.NewNamespace("env")

	DefinitionError  = EnvErrors.NewType("definition")
	PlanError        = EnvErrors.NewType("plan")
	BuildError       = EnvErrors.NewType("build")
	FetchError       = EnvErrors.NewType("fetch")
	LaunchError      = EnvErrors.NewType("launch")
	ReadinessError   = EnvErrors.NewType("readiness")
	ReadinessTimeout = ReadinessError.NewSubtype("readiness_timeout")
	ReadinessOutcome = ReadinessError.NewSubtype("readiness_outcome")
	TeardownError    = EnvErrors.NewType("teardown")
	NotFoundError    = EnvErrors.NewType("not_found")

	EnvProperty       = errorx.RegisterProperty("env")
	ImageProperty     = errorx.RegisterProperty("image")
	ContainerProperty = errorx.RegisterProperty("container")
	ChecksProperty    = errorx.RegisterProperty("checks")
)
