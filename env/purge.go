package env

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"yuri91/tenv/backend"
)

// Purge removes every container and network created by the engine,
// including those left behind by runs that never terminated.
func Purge(ctx context.Context, be backend.Backend) error {
	managed := map[string]string{LabelManaged: "true"}

	var merr *multierror.Error
	containers, err := be.ListContainers(ctx, managed)
	if err != nil {
		return TeardownError.Wrap(err, "cannot list containers")
	}
	for _, id := range containers {
		logrus.Infof("removing container %s", id)
		if err := be.RemoveContainer(ctx, id); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	networks, err := be.ListNetworks(ctx, managed)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	for _, id := range networks {
		logrus.Infof("removing network %s", id)
		if err := be.RemoveNetwork(ctx, id); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return TeardownError.Wrap(err, "purge incomplete")
	}
	return nil
}
