package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/libc-labs/eth-rewards-collector/pkg/config"
	"github.com/libc-labs/eth-rewards-collector/pkg/metrics"
)

var MonitorCommand = &cli.Command{
	Name:   "monitor",
	Usage:  "continuously collect validator rewards as new epoch windows finalize",
	Action: LaunchRewardsMonitor,
	Flags: append([]cli.Flag{
		&cli.Uint64Flag{
			Name:    "start-epoch",
			Usage:   "epoch to start from when no cursor exists",
			EnvVars: []string{"EPOCH_START"},
		},
		&cli.DurationFlag{
			Name:    "check-interval",
			Usage:   "how often to poll for a new finalized epoch, example: 60s",
			EnvVars: []string{"CHECK_INTERVAL"},
		},
	}, collectorFlags...),
}

var logCmdMonitor = logrus.WithField(
	"module", "monitorCommand",
)

func LaunchRewardsMonitor(c *cli.Context) error {
	conf := config.NewCollectorConfig()
	conf.Apply(c)

	rewardsCollector, dbService, err := setupCollector(c, conf)
	if err != nil {
		return err
	}
	defer dbService.Close()

	promMetrics := metrics.NewPrometheusMetrics(c.Context, "0.0.0.0", conf.PrometheusPort)
	promMetrics.AddMeticsModule(rewardsCollector.GetPrometheusMetrics())
	promMetrics.Start()

	procDoneC := make(chan struct{})
	sigtermC := make(chan os.Signal, 1)
	signal.Notify(sigtermC, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	go func() {
		if err := rewardsCollector.RunMonitor(conf.CheckInterval); err != nil {
			logCmdMonitor.Errorf("monitor failed: %s", err)
		}
		procDoneC <- struct{}{}
	}()

	select {
	case <-sigtermC:
		logCmdMonitor.Info("sudden shutdown detected, controlled shutdown of the monitor triggered")
		rewardsCollector.Close()
	case <-procDoneC:
		logCmdMonitor.Info("process successfully finished!")
	}
	close(sigtermC)
	close(procDoneC)

	return nil
}
