package image

import (
	"github.com/joomcode/errorx"
)

var (
	ImageErrors = errorx.NewNamespace("image")

	WorkspaceError = ImageErrors.NewType("workspace")
	ReferenceError = ImageErrors.NewType("reference")
)
