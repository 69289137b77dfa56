// Package image prepares what the container runtime needs to produce an
// image: a build context on disk for built images, a normalized reference
// for fetched ones.
package image

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/containers/image/v5/docker/reference"

	"yuri91/tenv/tpl"
)

// Containerfiles are looked up in this order in a materialized workspace.
var Containerfiles = []string{"Containerfile", "Dockerfile"}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// NormalizeReference turns a short reference like "mongo" into its fully
// qualified, tagged form (docker.io/library/mongo:latest).
func NormalizeReference(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", ReferenceError.Wrap(err, "invalid image reference %q", ref)
	}
	return reference.TagNameOnly(named).String(), nil
}

// Materialize writes the workspace of a built image into a fresh directory
// under root and returns it. The directory belongs to this image alone.
func Materialize(root string, spec tpl.ImageSpec) (string, error) {
	if !spec.Build {
		return "", WorkspaceError.New("image %s is fetched and has no workspace", spec.Name)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", WorkspaceError.Wrap(err, "workspace root %s is not available", root)
	}
	if !info.IsDir() {
		return "", WorkspaceError.New("workspace root %s is not a directory", root)
	}

	dir, err := os.MkdirTemp(root, "tenv_"+unsafeChars.ReplaceAllString(spec.Name, "_")+"_")
	if err != nil {
		return "", WorkspaceError.Wrap(err, "cannot create workspace for image %s", spec.Name)
	}
	for _, f := range spec.Workspace {
		if err := Extra(dir, f.Path, f.Data, f.Mode); err != nil {
			os.RemoveAll(dir)
			return "", WorkspaceError.Wrap(err, "cannot add file %s to workspace of image %s", f.Path, spec.Name)
		}
	}
	return dir, nil
}

// FindContainerfile returns the path of the build recipe in dir.
func FindContainerfile(dir string) (string, error) {
	for _, name := range Containerfiles {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", WorkspaceError.New("workspace %s has no Containerfile or Dockerfile", dir)
}

// Extra writes one file into dir, creating parent directories. The mode is
// applied explicitly so the umask does not strip exec bits.
func Extra(dir string, path string, content []byte, mode os.FileMode) error {
	p := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(p), 0777); err != nil {
		return err
	}
	if err := os.WriteFile(p, content, mode); err != nil {
		return err
	}
	return os.Chmod(p, mode)
}
