package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/status-im/verif-proxy/params"
)

func resolve(t *testing.T, args ...string) (*params.ProxyConfig, error) {
	var (
		config *params.ProxyConfig
		err    error
	)
	app := &cli.App{
		Flags: proxyFlags,
		Action: func(cCtx *cli.Context) error {
			config, err = makeConfig(cCtx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"verifproxy"}, args...)))
	return config, err
}

func TestMakeConfigDefaults(t *testing.T) {
	config, err := resolve(t)
	require.NoError(t, err)
	require.Equal(t, params.NetworkMainnet, config.Network)
	require.Equal(t, "127.0.0.1:8545", config.RPCAddress())
	require.Empty(t, config.ExecutionRPCs)
	require.Equal(t, uint64(params.DefaultMaxAncestorWalk), config.MaxAncestorWalk)
}

func TestMakeConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"network": "sepolia",
		"executionRpcs": ["http://file.example:8545"],
		"rpcPort": 9000,
		"wsEnabled": true,
		"logLevel": "WARN"
	}`), 0600))

	config, err := resolve(t,
		"--config", path,
		"--execution-rpc", "http://flag.example:8545",
		"--execution-verifiable-api", "http://proofs.example:8545",
		"--rpc-port", "0",
		"--log-level", "DEBUG",
	)
	require.NoError(t, err)
	require.Equal(t, params.NetworkSepolia, config.Network)
	require.Equal(t, []string{"http://flag.example:8545"}, config.ExecutionRPCs)
	require.Equal(t, "http://proofs.example:8545", config.ExecutionVerifiableAPI)
	require.Equal(t, uint16(0), config.RPCPort)
	require.True(t, config.WSEnabled)
	require.Equal(t, "DEBUG", config.LogLevel)
}

func TestMakeConfigValidates(t *testing.T) {
	_, err := resolve(t, "--network", "ropsten")
	require.Error(t, err)

	_, err = resolve(t, "--execution-verifiable-api", "http://proofs.example:8545")
	require.Error(t, err)

	_, err = resolve(t, "--execution-rpc", "not a url")
	require.Error(t, err)

	_, err = resolve(t, "--profile")
	require.Error(t, err)

	config, err := resolve(t, "--profile", "--data-dir", t.TempDir())
	require.NoError(t, err)
	require.True(t, config.Profiling)
}

func TestMakeConfigRejectsUnknownFileFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"unknown": 1}`), 0600))

	_, err := resolve(t, "--config", path)
	require.Error(t, err)
}
