package podman

import (
	"github.com/joomcode/errorx"
)

var (
	PodmanErrors = errorx.NewNamespace("podman")

	ConnectionError = PodmanErrors.NewType("connection")
	ImageError      = PodmanErrors.NewType("image")
	NetworkError    = PodmanErrors.NewType("network")
	ContainerError  = PodmanErrors.NewType("container")
)
