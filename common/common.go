package common

import "path/filepath"

// TplPath is where templates are looked up. WorkspacePath and MountPath
// hold the build contexts and mounted files of running environments.
var TplPath string
var WorkspacePath string
var MountPath string

func SetPaths(tplDir string, stateDir string) {
	TplPath = filepath.Join(tplDir, "")
	WorkspacePath = filepath.Join(stateDir, "workspace")
	MountPath = filepath.Join(stateDir, "mounts")
}
