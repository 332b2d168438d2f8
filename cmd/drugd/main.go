package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	drugd "github.com/iov-one/drugchain/cmd/drugd/app"
	"github.com/iov-one/drugchain/x/metrics"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/commands/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	flagHome    = "home"
	flagMetrics = "metrics"
	varHome     *string
	varMetrics  *string
)

func init() {
	defaultHome := filepath.Join(os.ExpandEnv("$HOME"), ".drugchain")
	varHome = flag.String(flagHome, defaultHome, "directory to store files under")
	varMetrics = flag.String(flagMetrics, "", "address to serve Prometheus metrics on, disabled if empty")

	flag.CommandLine.Usage = helpMessage
}

func helpMessage() {
	fmt.Println("drugd")
	fmt.Println("          Drug supply chain node")
	fmt.Println("")
	fmt.Println("help      Print this message")
	fmt.Println("init      Initialize app options in genesis file")
	fmt.Println("start     Run the abci server")
	fmt.Println("version   Print the app version")
	fmt.Println(`
  -home string
        directory to store files under (default "$HOME/.drugchain")
  -metrics string
        address to serve Prometheus metrics on, disabled if empty`)
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "drugchain")

	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	rest := flag.Args()[1:]

	var err error
	switch cmd {
	case "help":
		helpMessage()
	case "init":
		err = server.InitCmd(drugd.GenInitOptions, logger, *varHome, rest)
	case "start":
		if *varMetrics != "" {
			go serveMetrics(logger, *varMetrics)
		}
		m := metrics.New(prometheus.DefaultRegisterer)
		err = server.StartCmd(drugd.NewAppGenerator(m), logger, *varHome, rest)
	case "version":
		fmt.Println(weave.Version)
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		helpMessage()
		os.Exit(1)
	}
}

func serveMetrics(logger log.Logger, addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("Metrics server failed", "err", err)
	}
}
