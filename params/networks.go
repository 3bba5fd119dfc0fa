package params

import (
	"fmt"
	"sort"
)

// Define supported networks.
const (
	NetworkMainnet = "mainnet"
	NetworkSepolia = "sepolia"
	NetworkHolesky = "holesky"
)

// Chain ids of the supported networks.
const (
	MainnetChainID uint64 = 1
	SepoliaChainID uint64 = 11155111
	HoleskyChainID uint64 = 17000
)

// NetworkPreset holds the defaults applied for a network before user overrides.
type NetworkPreset struct {
	Name         string `json:"name"`
	ChainID      uint64 `json:"chainId"`
	ConsensusRPC string `json:"consensusRpc"`
	// Fallback is the checkpoint fallback service used when LoadExternalFallback is set.
	Fallback string `json:"fallback"`
	RPCPort  uint16 `json:"rpcPort"`
}

var networks = map[string]NetworkPreset{
	NetworkMainnet: {
		Name:         NetworkMainnet,
		ChainID:      MainnetChainID,
		ConsensusRPC: "https://www.lightclientdata.org",
		Fallback:     "https://sync-mainnet.beaconcha.in",
		RPCPort:      8545,
	},
	NetworkSepolia: {
		Name:         NetworkSepolia,
		ChainID:      SepoliaChainID,
		ConsensusRPC: "http://testing.sepolia.beacon-api.nimbus.team",
		Fallback:     "https://sync-sepolia.beaconcha.in",
		RPCPort:      8545,
	},
	NetworkHolesky: {
		Name:         NetworkHolesky,
		ChainID:      HoleskyChainID,
		ConsensusRPC: "http://testing.holesky.beacon-api.nimbus.team",
		Fallback:     "https://holesky.beaconstate.info",
		RPCPort:      8545,
	},
}

// PresetForNetwork returns the preset for a given network name.
func PresetForNetwork(name string) (NetworkPreset, error) {
	preset, ok := networks[name]
	if ok {
		return preset, nil
	}
	return NetworkPreset{}, fmt.Errorf("network %q could not be found", name)
}

// Networks lists supported network names.
func Networks() []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
