package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/libc-labs/eth-rewards-collector/cmd"
	"github.com/libc-labs/eth-rewards-collector/pkg/utils"
)

var (
	log = logrus.WithField(
		"cli", "CliName",
	)
)

func main() {
	fmt.Println(utils.CliName, utils.Version)

	// optional .env next to the binary, flags and env vars win over it
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded configuration from .env")
	}

	customFormatter := new(logrus.TextFormatter)
	customFormatter.FullTimestamp = true

	// Set the general log configurations for the entire tool
	logrus.SetFormatter(customFormatter)
	logrus.SetOutput(utils.ParseLogOutput("terminal"))
	logrus.SetLevel(utils.ParseLogLevel("info"))

	app := &cli.App{
		Name:      utils.CliName,
		Usage:     "collects Ethereum validator rewards from the beaconcha.in API and persists them for invoicing.",
		UsageText: "rewards-collector [commands] [arguments...]",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			cmd.MonitorCommand,
			cmd.BackfillCommand,
			cmd.CollectCommand,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Errorf("error: %v\n", err)
		os.Exit(1)
	}
}
