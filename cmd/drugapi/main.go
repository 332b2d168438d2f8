package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/iov-one/drugchain/cmd/drugapi/handlers"
	"github.com/iov-one/drugchain/contract"
	"github.com/iov-one/drugchain/x/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendermint/tendermint/libs/log"
)

type configuration struct {
	HTTP     string `env:"DRUGAPI_HTTP"     envDefault:"127.0.0.1:8000"`
	Deployer string `env:"DRUGAPI_DEPLOYER" envDefault:"deployer"`
	ChainID  string `env:"DRUGAPI_CHAIN_ID" envDefault:"drugchain"`
	Debug    bool   `env:"DRUGAPI_DEBUG"`
	// APIKeys maps API keys to the principal they act for, for example
	// "s3cr3t:deployer,0th3r:ST1PQHQK".
	APIKeys map[string]string `env:"DRUGAPI_API_KEYS"`
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "drugapi")

	var conf configuration
	if err := env.Parse(&conf); err != nil {
		logger.Error("cannot parse configuration", "err", err)
		os.Exit(1)
	}
	if !conf.Debug {
		logger = log.NewFilter(logger, log.AllowInfo())
	}

	if err := run(conf, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(conf configuration, logger log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	ledger, err := contract.NewLedger(conf.Deployer,
		contract.WithChainID(conf.ChainID),
		contract.WithLogger(logger.With("module", "ledger")),
		contract.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return fmt.Errorf("ledger: %s", err)
	}

	srv := handlers.Server{
		Ledger:   ledger,
		Logger:   logger,
		Gatherer: reg,
		Keys:     conf.APIKeys,
	}
	if len(conf.APIKeys) == 0 {
		logger.Info("No API keys configured, the gateway is read only")
	}
	logger.Info("Starting HTTP server", "addr", conf.HTTP, "chain_id", conf.ChainID)
	if err := http.ListenAndServe(conf.HTTP, srv.Routes()); err != nil {
		return fmt.Errorf("http server: %s", err)
	}
	return nil
}
