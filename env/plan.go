package env

import (
	"fmt"
	"regexp"
	"strings"

	"yuri91/tenv/backend"
	"yuri91/tenv/image"
	"yuri91/tenv/tpl"
)

// imageJob is one image the environment needs, shared by every container
// that runs it. done is closed once id or err is set.
type imageJob struct {
	spec tpl.ImageSpec
	// tpl is the template instance that declared the image first.
	tpl string
	// ref is the normalized reference for fetched images, tag the name
	// given to built ones.
	ref string
	tag string

	done chan struct{}
	id   backend.ImageID
	err  error
}

func (j *imageJob) finish(id backend.ImageID, err error) {
	j.id, j.err = id, err
	close(j.done)
}

type plan struct {
	images []*imageJob
	byName map[string]*imageJob
}

var tagUnsafe = regexp.MustCompile(`[^a-z0-9_.-]+`)

// builtTag names a built image after the image and the environment, so
// concurrent environments never fight over a tag.
func builtTag(envID, name string) string {
	n := strings.Trim(tagUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-.")
	if n == "" {
		n = "image"
	}
	return fmt.Sprintf("localhost/tenv-%s:%s", n, envID)
}

// makePlan merges the images of every instance by name. The first
// declaration in template order wins; declaring a name fetched in one place
// and built in another fails.
func makePlan(envID string, decls []*tpl.Declarations) (*plan, error) {
	p := &plan{byName: map[string]*imageJob{}}
	for _, d := range decls {
		owner := fmt.Sprintf("%s[%d]", d.Template, d.Index)
		for _, img := range d.Images {
			if prev, ok := p.byName[img.Name]; ok {
				if prev.spec.Build != img.Build {
					return nil, PlanError.New("image %s is built by %s and fetched by %s",
						img.Name, builder(prev.spec, prev.tpl, owner), fetcher(prev.spec, prev.tpl, owner)).
						WithProperty(ImageProperty, img.Name)
				}
				continue
			}
			job := &imageJob{spec: img, tpl: owner, done: make(chan struct{})}
			if img.Build {
				job.tag = builtTag(envID, img.Name)
			} else {
				ref, err := image.NormalizeReference(img.Ref)
				if err != nil {
					return nil, PlanError.Wrap(err, "image %s of %s", img.Name, owner).
						WithProperty(ImageProperty, img.Name)
				}
				job.ref = ref
			}
			p.images = append(p.images, job)
			p.byName[img.Name] = job
		}
	}
	return p, nil
}

func builder(first tpl.ImageSpec, firstTpl, other string) string {
	if first.Build {
		return firstTpl
	}
	return other
}

func fetcher(first tpl.ImageSpec, firstTpl, other string) string {
	if first.Build {
		return other
	}
	return firstTpl
}
