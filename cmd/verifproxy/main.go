package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/status-im/verif-proxy/chain/ethereum"
	"github.com/status-im/verif-proxy/consensus/beacon"
	"github.com/status-im/verif-proxy/execution"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
	"github.com/status-im/verif-proxy/node"
	"github.com/status-im/verif-proxy/params"
	"github.com/status-im/verif-proxy/profiling"
	"github.com/status-im/verif-proxy/rpc"
)

var gitCommit = "rely on linker: -ldflags -X main.gitCommit"

func main() {
	app := &cli.App{
		Name:    "verifproxy",
		Usage:   "Ethereum JSON-RPC proxy verifying upstream answers against the beacon chain",
		Version: version(),
		Flags:   proxyFlags,
		Action:  run,
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Print the configuration resolved from defaults, file and flags",
				Flags: proxyFlags,
				Action: func(cCtx *cli.Context) error {
					config, err := makeConfig(cCtx)
					if err != nil {
						return err
					}
					fmt.Println(config)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logutils.ZapLogger().Error("verifproxy failed", zap.Error(err))
		os.Exit(1)
	}
}

func version() string {
	v := params.Version
	if len(gitCommit) == 40 {
		v += "-" + gitCommit[:8]
	}
	return v
}

// proxy holds every started component, stopped in reverse order.
type proxy struct {
	profile *profiling.Session
	tracker *beacon.Tracker
	node    *node.Node
	server  *rpc.Server
	metrics *metrics.Server
}

func run(cCtx *cli.Context) error {
	config, err := makeConfig(cCtx)
	if err != nil {
		return err
	}
	if err := logutils.OverrideRootLogWithConfig(config.LogSettings()); err != nil {
		return err
	}
	log := logutils.ZapLogger().Named("verifproxy")

	p, err := start(cCtx.Context, config)
	if err != nil {
		return err
	}
	log.Info("verifproxy started",
		zap.String("version", version()),
		zap.String("network", p.node.Network().Name()),
		zap.Stringer("rpc", p.server.Addr()),
		zap.Stringer("mode", p.node.Mode()),
	)

	waitForSignal(cCtx.Context)
	log.Info("stopping verifproxy")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout.Std())
	defer cancel()
	return p.stop(ctx)
}

func start(ctx context.Context, config *params.ProxyConfig) (_ *proxy, err error) {
	p := &proxy{}
	defer func() {
		if err != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout.Std())
			defer cancel()
			err = multierr.Append(err, p.stop(stopCtx))
		}
	}()

	if config.Profiling {
		p.profile, err = profiling.Start(config.DataDir)
		if err != nil {
			return p, err
		}
	}

	proof, err := config.ProofEndpoint()
	if err != nil {
		return p, err
	}
	mode := execution.NewMode(config.ExecutionEndpoints(), proof)

	network, err := ethereum.ForName(config.Network)
	if err != nil {
		return p, err
	}

	p.tracker = beacon.NewTracker(beacon.Config{
		URL:     config.ConsensusRPC,
		ChainID: config.ChainID(),
	})
	p.tracker.Start()

	p.node, err = node.Dial(ctx, node.Config{
		MaxAncestorWalk: config.MaxAncestorWalk,
		HeaderCacheTTL:  config.HeaderCacheTTL.Std(),
	}, mode, network, p.tracker)
	if err != nil {
		return p, err
	}

	api, err := rpc.NewAPI(p.node)
	if err != nil {
		return p, err
	}
	server := rpc.NewServer(rpc.Config{
		Address:           config.RPCAddress(),
		CORSOrigins:       config.HTTPCors,
		WSEnabled:         config.WSEnabled,
		RequestsPerSecond: config.RequestsPerSecond,
		RequestBurst:      config.RequestBurst,
		RequestTimeout:    config.RequestTimeout.Std(),
	}, api)
	if _, err := server.Start(); err != nil {
		return p, err
	}
	p.server = server

	if config.MetricsAddr != "" {
		metricsServer := metrics.NewMetricsServer(config.MetricsAddr, nil)
		if _, err := metricsServer.Listen(); err != nil {
			return p, err
		}
		p.metrics = metricsServer
		go p.metrics.Serve()
	}
	return p, nil
}

func (p *proxy) stop(ctx context.Context) error {
	var err error
	if p.metrics != nil {
		err = multierr.Append(err, p.metrics.Stop(ctx))
	}
	if p.server != nil {
		err = multierr.Append(err, p.server.Stop(ctx))
	}
	if p.node != nil {
		p.node.Close()
	}
	if p.tracker != nil {
		p.tracker.Stop()
	}
	if p.profile != nil {
		err = multierr.Append(err, p.profile.Stop())
	}
	return err
}

func waitForSignal(ctx context.Context) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case <-signals:
	case <-ctx.Done():
	}
}
