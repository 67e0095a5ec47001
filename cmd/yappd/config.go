package main

import (
	"time"

	"github.com/jessevdk/go-flags"
)

type cliOptions struct {
	ListenAddr string `long:"listen" env:"YAPPD_LISTEN" default:":8080" description:"HTTP listen address"`

	IndexerURL   string        `long:"indexer-url" env:"YAPPD_INDEXER_URL" default:"https://tx.yodl.me" description:"payment indexer base URL"`
	PollInterval time.Duration `long:"poll-interval" env:"YAPPD_POLL_INTERVAL" default:"250ms" description:"indexer polling interval"`
	PollAttempts int           `long:"poll-attempts" env:"YAPPD_POLL_ATTEMPTS" default:"40" description:"indexer polling attempt budget"`

	RequiredChainID int64 `long:"chain-id" env:"YAPPD_CHAIN_ID" description:"required chain id for verification (0 disables the check)"`

	ConfirmationBase string `long:"confirmation-base" env:"YAPPD_CONFIRMATION_BASE" default:"/confirmation" description:"base path for confirmation URLs"`

	MySQLDSN string `long:"mysql-dsn" env:"YAPPD_MYSQL_DSN" description:"MySQL DSN for durable order storage (empty selects in-memory)"`
}

func parseOptions(args []string) (*cliOptions, error) {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return &opts, nil
}
