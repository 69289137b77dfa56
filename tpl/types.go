package tpl

import (
	"io/fs"
	"time"

	"yuri91/tenv/format"
)

type WorkspaceFile struct {
	Path string
	Data []byte
	Mode fs.FileMode
}

// ImageSpec is either fetched (Ref set) or built (Workspace set), never both.
type ImageSpec struct {
	Name      string
	Ref       string
	Build     bool
	Workspace []WorkspaceFile
}

type Mount struct {
	Source      string
	Dest        string
	Data        []byte
	Interpolate bool
}

type ContainerSpec struct {
	Name   string
	Image  string
	Ports  []int
	Labels map[string]string
	Mounts []Mount
}

const (
	CheckHTTP = "http"
	CheckTCP  = "tcp"
)

// CheckSpec is what a template passes to AddReadinessCheck. URL is a
// placeholder string (see package format); for tcp checks it is host:port.
type CheckSpec struct {
	URL      string
	Codes    []int
	Interval time.Duration
	Timeout  time.Duration
}

type ReadinessCheck struct {
	Name     string
	Kind     string
	Target   format.Format
	Codes    []int
	Interval time.Duration
	Timeout  time.Duration
}

// Declarations is everything one template execution declared.
type Declarations struct {
	Template   string
	Index      int
	Images     []ImageSpec
	Containers []ContainerSpec
	Checks     []ReadinessCheck
	// Params are the parameters after defaults were applied, as seen by
	// interpolated mounts.
	Params map[string]interface{}
}

func (d *Declarations) Container(name string) (ContainerSpec, bool) {
	for _, c := range d.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return ContainerSpec{}, false
}
