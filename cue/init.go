package cue

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var nameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// Init writes a template skeleton called name into dir, along with an empty
// data directory holding a placeholder Dockerfile.
func Init(dir string, name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid template name %q", name)
	}

	p := filepath.Join(dir, name+TemplateSuffix)
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("template %s already exists", p)
	}

	dataDir := filepath.Join(dir, name+DataSuffix)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	df := filepath.Join(dataDir, "Dockerfile")
	if _, err := os.Stat(df); os.IsNotExist(err) {
		if err := os.WriteFile(df, []byte("FROM busybox\n"), 0644); err != nil {
			return err
		}
	}

	return os.WriteFile(p, []byte(fmt.Sprintf(skeletonStr, name)), 0644)
}
