package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whyrusleeping/go-did-ledger/node"
)

func main() {
	app := cli.NewApp()
	app.Name = "ledger-node"
	app.Usage = "run simulated ledger validator nodes"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "genesis",
			Usage:    "domain genesis file with the initial identities",
			Required: true,
			EnvVars:  []string{"LEDGER_NODE_GENESIS"},
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "address of the first node",
			Value: "127.0.0.1:9702",
		},
		&cli.IntFlag{
			Name:  "count",
			Usage: "number of nodes to run, on consecutive even ports",
			Value: 1,
		},
		&cli.BoolFlag{
			Name: "debug",
		},
	}

	app.Action = run

	app.RunAndExitOnError()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func run(cctx *cli.Context) error {
	logger, err := newLogger(cctx.Bool("debug"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	f, err := os.Open(cctx.String("genesis"))
	if err != nil {
		return err
	}
	defer f.Close()

	genesis, err := node.ReadDomainGenesis(f)
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(cctx.String("listen"))
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	var g errgroup.Group

	for i := 0; i < cctx.Int("count"); i++ {
		name := fmt.Sprintf("Node%d", i+1)
		addr := net.JoinHostPort(host, strconv.Itoa(port+2*i))

		reg := prometheus.NewRegistry()

		n, err := node.New(name, genesis, node.WithLogger(logger), node.WithRegisterer(reg))
		if err != nil {
			return err
		}

		e := echo.New()
		e.HideBanner = true
		e.Use(middleware.Logger())
		node.NewServer(n).Register(e)
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

		logger.Info("starting node", zap.String("node", name), zap.String("addr", addr), zap.Int("nyms", len(genesis)))

		g.Go(func() error {
			return e.Start(addr)
		})
	}

	return g.Wait()
}
