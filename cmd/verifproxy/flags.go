package main

import (
	"github.com/urfave/cli/v2"

	"github.com/status-im/verif-proxy/params"
)

const (
	ConfigFileFlag             = "config"
	NetworkFlag                = "network"
	ExecutionRPCFlag           = "execution-rpc"
	ExecutionVerifiableAPIFlag = "execution-verifiable-api"
	ConsensusRPCFlag           = "consensus-rpc"
	CheckpointFlag             = "checkpoint"
	RPCBindIPFlag              = "rpc-bind-ip"
	RPCPortFlag                = "rpc-port"
	DataDirFlag                = "data-dir"
	ProfileFlag                = "profile"
	FallbackFlag               = "fallback"
	LoadExternalFallbackFlag   = "load-external-fallback"
	StrictCheckpointAgeFlag    = "strict-checkpoint-age"
	HTTPCorsFlag               = "http-cors"
	WSFlag                     = "ws"
	RequestsPerSecondFlag      = "requests-per-second"
	MetricsAddrFlag            = "metrics-addr"
	LogLevelFlag               = "log-level"
	LogFileFlag                = "log-file"
	LogColorsFlag              = "log-colors"
)

var proxyFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    ConfigFileFlag,
		Aliases: []string{"c"},
		Usage:   "JSON configuration file, applied on top of the network defaults",
	},
	&cli.StringFlag{
		Name:    NetworkFlag,
		Aliases: []string{"n"},
		Value:   params.NetworkMainnet,
		Usage:   "Network to serve: mainnet, sepolia or holesky",
	},
	&cli.StringSliceFlag{
		Name:    ExecutionRPCFlag,
		Aliases: []string{"e"},
		Usage:   "Execution RPC endpoint, repeat for more. The first one is primary",
	},
	&cli.StringFlag{
		Name:  ExecutionVerifiableAPIFlag,
		Usage: "Proof endpoint. Setting it enables verifiable mode",
	},
	&cli.StringFlag{
		Name:  ConsensusRPCFlag,
		Usage: "Beacon light client API",
	},
	&cli.StringFlag{
		Name:  CheckpointFlag,
		Usage: "Trusted beacon block root",
	},
	&cli.StringFlag{
		Name:  RPCBindIPFlag,
		Usage: "Address the JSON-RPC server binds to",
	},
	&cli.UintFlag{
		Name:  RPCPortFlag,
		Usage: "Port the JSON-RPC server listens on, 0 picks a free one",
	},
	&cli.StringFlag{
		Name:  DataDirFlag,
		Usage: "Data directory",
	},
	&cli.BoolFlag{
		Name:  ProfileFlag,
		Usage: "Write CPU and heap profiles into the data directory",
	},
	&cli.StringFlag{
		Name:  FallbackFlag,
		Usage: "Checkpoint fallback service",
	},
	&cli.BoolFlag{
		Name:  LoadExternalFallbackFlag,
		Usage: "Load checkpoints from the fallback service",
	},
	&cli.BoolFlag{
		Name:  StrictCheckpointAgeFlag,
		Usage: "Refuse checkpoints older than the weak subjectivity period",
	},
	&cli.StringSliceFlag{
		Name:  HTTPCorsFlag,
		Usage: "Allowed CORS origin, repeat for more",
	},
	&cli.BoolFlag{
		Name:  WSFlag,
		Usage: "Accept websocket connections on the RPC port",
	},
	&cli.Float64Flag{
		Name:  RequestsPerSecondFlag,
		Usage: "Requests accepted per second across all clients, 0 disables the limit",
	},
	&cli.StringFlag{
		Name:  MetricsAddrFlag,
		Usage: "Prometheus endpoint address, e.g. 127.0.0.1:9090",
	},
	&cli.StringFlag{
		Name:  LogLevelFlag,
		Usage: `Log level, one of: "ERROR", "WARN", "INFO", "DEBUG", and "TRACE"`,
	},
	&cli.StringFlag{
		Name:  LogFileFlag,
		Usage: "Path to the log file, rotated by size",
	},
	&cli.BoolFlag{
		Name:  LogColorsFlag,
		Usage: "Colored console logs",
	},
}

// makeConfig layers network defaults, the config file and the flags set on the command line,
// in that order, and validates the result.
func makeConfig(cCtx *cli.Context) (*params.ProxyConfig, error) {
	config, err := params.NewProxyConfig(cCtx.String(NetworkFlag))
	if err != nil {
		return nil, err
	}

	if path := cCtx.String(ConfigFileFlag); path != "" {
		if err := params.LoadConfigFromFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := config.Merge(flagOverrides(cCtx)); err != nil {
		return nil, err
	}

	// the port is the one field where zero is meaningful, mergo would skip it
	if cCtx.IsSet(RPCPortFlag) {
		config.RPCPort = uint16(cCtx.Uint(RPCPortFlag))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func flagOverrides(cCtx *cli.Context) *params.ProxyConfig {
	override := &params.ProxyConfig{
		ExecutionRPCs:          cCtx.StringSlice(ExecutionRPCFlag),
		ExecutionVerifiableAPI: cCtx.String(ExecutionVerifiableAPIFlag),
		ConsensusRPC:           cCtx.String(ConsensusRPCFlag),
		Checkpoint:             cCtx.String(CheckpointFlag),
		RPCBindIP:              cCtx.String(RPCBindIPFlag),
		DataDir:                cCtx.String(DataDirFlag),
		Profiling:              cCtx.Bool(ProfileFlag),
		Fallback:               cCtx.String(FallbackFlag),
		LoadExternalFallback:   cCtx.Bool(LoadExternalFallbackFlag),
		StrictCheckpointAge:    cCtx.Bool(StrictCheckpointAgeFlag),
		HTTPCors:               cCtx.StringSlice(HTTPCorsFlag),
		WSEnabled:              cCtx.Bool(WSFlag),
		RequestsPerSecond:      cCtx.Float64(RequestsPerSecondFlag),
		MetricsAddr:            cCtx.String(MetricsAddrFlag),
		LogLevel:               cCtx.String(LogLevelFlag),
		LogFile:                cCtx.String(LogFileFlag),
		LogColors:              cCtx.Bool(LogColorsFlag),
	}
	// the network is chosen before the file is read, a file may not be overridden by the default
	if cCtx.IsSet(NetworkFlag) {
		override.Network = cCtx.String(NetworkFlag)
	}
	return override
}
