package cue

import (
	"yuri91/tenv/sandbox"
)

// DirResolver finds templates by name in a directory.
type DirResolver struct {
	Dir string
}

func (r DirResolver) Resolve(name string) (sandbox.Template, error) {
	t, err := LoadTemplate(r.Dir, name)
	if err != nil {
		return nil, err
	}
	return t, nil
}
