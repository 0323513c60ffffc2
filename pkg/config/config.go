package config

import (
	"time"

	cli "github.com/urfave/cli/v2"
)

type CollectorConfig struct {
	LogLevel          string          `json:"log-level"`
	ApiEndpoint       string          `json:"api-endpoint"`
	ApiKey            string          `json:"api-key"`
	BnEndpoint        string          `json:"bn-endpoint"`
	ValidatorsCsv     string          `json:"validators-csv"`
	DBUrl             string          `json:"db-url"`
	StartEpoch        uint64          `json:"start-epoch"`
	EpochInterval     uint64          `json:"epoch-interval"`
	CheckInterval     time.Duration   `json:"check-interval"`
	BackfillDelay     time.Duration   `json:"backfill-delay"`
	CursorFile        string          `json:"cursor-file"`
	MevRelays         cli.StringSlice `json:"mev-relays"`
	PrometheusPort    int             `json:"prometheus-port"`
	MaxRequestRetries int             `json:"max-request-retries"`
}

func NewCollectorConfig() *CollectorConfig {
	// Return default values for the collector configuration
	return &CollectorConfig{
		LogLevel:          DefaultLogLevel,
		ApiEndpoint:       DefaultApiEndpoint,
		ApiKey:            DefaultApiKey,
		BnEndpoint:        DefaultBnEndpoint,
		ValidatorsCsv:     DefaultValidatorsCsv,
		DBUrl:             DefaultDBUrl,
		StartEpoch:        DefaultStartEpoch,
		EpochInterval:     DefaultEpochInterval,
		CheckInterval:     DefaultCheckInterval,
		BackfillDelay:     DefaultBackfillDelay,
		CursorFile:        DefaultCursorFile,
		PrometheusPort:    DefaultPrometheusPort,
		MaxRequestRetries: DefaultMaxRequestRetries,
	}
}

func (c *CollectorConfig) Apply(ctx *cli.Context) {
	// apply to the existing default configuration the set flags
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("api-endpoint") {
		c.ApiEndpoint = ctx.String("api-endpoint")
	}
	if ctx.IsSet("api-key") {
		c.ApiKey = ctx.String("api-key")
	}
	if ctx.IsSet("bn-endpoint") {
		c.BnEndpoint = ctx.String("bn-endpoint")
	}
	if ctx.IsSet("validators-csv") {
		c.ValidatorsCsv = ctx.String("validators-csv")
	}
	if ctx.IsSet("db-url") {
		c.DBUrl = ctx.String("db-url")
	}
	if ctx.IsSet("start-epoch") {
		c.StartEpoch = ctx.Uint64("start-epoch")
	}
	if ctx.IsSet("epoch-interval") {
		c.EpochInterval = ctx.Uint64("epoch-interval")
	}
	if ctx.IsSet("check-interval") {
		c.CheckInterval = ctx.Duration("check-interval")
	}
	if ctx.IsSet("backfill-delay") {
		c.BackfillDelay = ctx.Duration("backfill-delay")
	}
	if ctx.IsSet("cursor-file") {
		c.CursorFile = ctx.String("cursor-file")
	}
	if ctx.IsSet("mev-relays") {
		c.MevRelays = *cli.NewStringSlice(ctx.StringSlice("mev-relays")...)
	}
	if ctx.IsSet("prometheus-port") {
		c.PrometheusPort = ctx.Int("prometheus-port")
	}
	if ctx.IsSet("max-request-retries") {
		c.MaxRequestRetries = ctx.Int("max-request-retries")
	}
}
