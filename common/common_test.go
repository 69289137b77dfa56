package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetPaths(t *testing.T) {
	SetPaths("./templates/", "/var/lib/tenv")
	assert.Equal(t, "templates", TplPath)
	assert.Equal(t, "/var/lib/tenv/workspace", WorkspacePath)
	assert.Equal(t, "/var/lib/tenv/mounts", MountPath)
}
