package cmd

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/errors"
	"github.com/joomcode/errorx"

	"yuri91/tenv/cue"
)

// report prints CUE errors with their positions and exits. Other errors are
// handed back to cobra.
func report(err error) error {
	if errx, ok := err.(*errorx.Error); ok && cue.CueErrors.IsNamespaceOf(errx.Type()) {
		fmt.Printf("Error in template: [%s] %s \n", errx.Type().FullName(), errx.Message())
		fmt.Println(errors.Details(errx.Cause(), nil))
		os.Exit(1)
	}
	return err
}
