package cmd

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/libc-labs/eth-rewards-collector/pkg/config"
)

var CollectCommand = &cli.Command{
	Name:   "collect",
	Usage:  "collect validator rewards for a single epoch window",
	Action: LaunchSingleCollection,
	Flags: append([]cli.Flag{
		&cli.Uint64Flag{
			Name:  "epoch",
			Usage: "start epoch of the window to collect",
		},
	}, collectorFlags...),
}

var logCmdCollect = logrus.WithField(
	"module", "collectCommand",
)

func LaunchSingleCollection(c *cli.Context) error {
	if !c.IsSet("epoch") {
		return errors.New("epoch not provided")
	}
	epoch := c.Uint64("epoch")

	conf := config.NewCollectorConfig()
	conf.Apply(c)

	rewardsCollector, dbService, err := setupCollector(c, conf)
	if err != nil {
		return err
	}
	defer dbService.Close()
	defer rewardsCollector.Close()

	if err := rewardsCollector.CollectOnce(epoch); err != nil {
		return errors.Wrapf(err, "collection of epoch %d failed", epoch)
	}
	logCmdCollect.Infof("successfully collected rewards for epoch %d", epoch)
	return nil
}
