package params

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/imdario/mergo"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/status-im/verif-proxy/logutils"
)

// Defaults applied by NewProxyConfig.
const (
	DefaultRPCBindIP       = "127.0.0.1"
	DefaultMaxAncestorWalk = 256
	DefaultHeaderCacheTTL  = Duration(10 * time.Minute)
	DefaultShutdownTimeout = Duration(10 * time.Second)
	DefaultRequestTimeout  = Duration(30 * time.Second)
	DefaultLogLevel        = "INFO"
	DefaultLogMaxSize      = 100
	DefaultLogMaxBackups   = 3
)

// Duration is a time.Duration encoded in JSON as a Go duration string, e.g. "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid duration %s", data)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ----------
// ProxyConfig
// ----------

// ProxyConfig stores the fully materialized configuration of the proxy.
type ProxyConfig struct {
	// Network selects chain id and defaults. One of mainnet, sepolia, holesky.
	Network string `json:"network" validate:"required,network"`

	// ExecutionRPCs is the ordered list of execution endpoints. The first one is primary.
	ExecutionRPCs []string `json:"executionRpcs" validate:"dive,url"`

	// ExecutionVerifiableAPI is the proof endpoint. Setting it enables verifiable mode.
	ExecutionVerifiableAPI string `json:"executionVerifiableApi" validate:"omitempty,url"`

	// ConsensusRPC is the beacon light client API used to track verified heads.
	ConsensusRPC string `json:"consensusRpc" validate:"omitempty,url"`

	// Checkpoint is a trusted beacon block root handed to the consensus engine.
	Checkpoint string `json:"checkpoint" validate:"omitempty,checkpoint"`

	RPCBindIP string `json:"rpcBindIp" validate:"omitempty,ip"`
	RPCPort   uint16 `json:"rpcPort"`

	DataDir string `json:"dataDir"`
	// Profiling writes CPU and heap profiles of the process into DataDir.
	Profiling bool `json:"profiling"`

	// Fallback is the checkpoint fallback service.
	Fallback             string `json:"fallback" validate:"omitempty,url"`
	LoadExternalFallback bool   `json:"loadExternalFallback"`
	StrictCheckpointAge  bool   `json:"strictCheckpointAge"`

	// HTTPCors lists allowed CORS origins. Empty disables CORS headers.
	HTTPCors  []string `json:"httpCors"`
	WSEnabled bool     `json:"wsEnabled"`

	// RequestsPerSecond limits accepted requests. Zero disables the limiter.
	RequestsPerSecond float64 `json:"requestsPerSecond" validate:"gte=0"`
	RequestBurst      int     `json:"requestBurst" validate:"gte=0"`

	// MaxAncestorWalk bounds how far back a block is verified through parent hashes.
	MaxAncestorWalk uint64   `json:"maxAncestorWalk" validate:"gte=1"`
	HeaderCacheTTL  Duration `json:"headerCacheTtl" validate:"gte=0"`
	RequestTimeout  Duration `json:"requestTimeout" validate:"gte=0"`
	ShutdownTimeout Duration `json:"shutdownTimeout" validate:"gte=0"`

	// MetricsAddr enables the prometheus endpoint when set.
	MetricsAddr string `json:"metricsAddr" validate:"omitempty,listen_addr"`

	LogEnabled    bool   `json:"logEnabled"`
	LogLevel      string `json:"logLevel" validate:"omitempty,oneof=ERROR WARN INFO DEBUG TRACE"`
	LogFile       string `json:"logFile"`
	LogMaxSize    int    `json:"logMaxSize" validate:"gte=0"`
	LogMaxBackups int    `json:"logMaxBackups" validate:"gte=0"`
	LogCompress   bool   `json:"logCompress"`
	LogColors     bool   `json:"logColors"`
}

// NewProxyConfig creates a configuration with the defaults of the given network.
// Important: the returned config is not validated.
func NewProxyConfig(network string) (*ProxyConfig, error) {
	preset, err := PresetForNetwork(network)
	if err != nil {
		return nil, err
	}

	return &ProxyConfig{
		Network:         preset.Name,
		ConsensusRPC:    preset.ConsensusRPC,
		Fallback:        preset.Fallback,
		RPCBindIP:       DefaultRPCBindIP,
		RPCPort:         preset.RPCPort,
		MaxAncestorWalk: DefaultMaxAncestorWalk,
		HeaderCacheTTL:  DefaultHeaderCacheTTL,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogEnabled:      true,
		LogLevel:        DefaultLogLevel,
		LogMaxSize:      DefaultLogMaxSize,
		LogMaxBackups:   DefaultLogMaxBackups,
	}, nil
}

// NewConfigFromJSON parses incoming JSON on top of the network defaults and validates the result.
func NewConfigFromJSON(network, configJSON string) (*ProxyConfig, error) {
	config, err := NewProxyConfig(network)
	if err != nil {
		return nil, err
	}

	if err := loadConfigFromJSON(configJSON, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFromJSON(configJSON string, config *ProxyConfig) error {
	decoder := json.NewDecoder(strings.NewReader(configJSON))
	decoder.DisallowUnknownFields()
	// override default configuration with values by JSON input
	return decoder.Decode(config)
}

// LoadConfigFromFile reads a JSON file on top of config.
func LoadConfigFromFile(path string, config *ProxyConfig) error {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return loadConfigFromJSON(string(jsonConfig), config)
}

// Merge overrides c with every non-zero field of override.
// Boolean flags can only be switched on this way.
func (c *ProxyConfig) Merge(override *ProxyConfig) error {
	if override == nil {
		return nil
	}
	return mergo.Merge(c, override, mergo.WithOverride)
}

// NewValidator returns a validator with the proxy specific tags registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		_, err := PresetForNetwork(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("checkpoint", func(fl validator.FieldLevel) bool {
		s := strings.TrimPrefix(fl.Field().String(), "0x")
		if len(s) != 64 {
			return false
		}
		for _, r := range s {
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
		return true
	})
	_ = validate.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil {
			return false
		}
		_, err = strconv.ParseUint(port, 10, 16)
		return err == nil
	})
	return validate
}

// Validate checks if ProxyConfig fields have valid values.
//
// A single error for a field has the following format:
//
//	Key: 'ProxyConfig.Network' Error:Field validation for 'Network' failed on the 'network' tag
func (c *ProxyConfig) Validate() error {
	validate := NewValidator()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.ExecutionVerifiableAPI != "" && len(c.ExecutionRPCs) == 0 {
		return fmt.Errorf("ExecutionVerifiableAPI is set, but ExecutionRPCs is empty")
	}

	if c.Profiling && c.DataDir == "" {
		return fmt.Errorf("Profiling is true, but DataDir is empty")
	}

	if c.LoadExternalFallback && c.Fallback == "" {
		return fmt.Errorf("LoadExternalFallback is true, but Fallback is empty")
	}

	return nil
}

// ChainID returns the chain id of the configured network.
func (c *ProxyConfig) ChainID() uint64 {
	preset, err := PresetForNetwork(c.Network)
	if err != nil {
		return 0
	}
	return preset.ChainID
}

// RPCAddress is the address the RPC server binds to.
func (c *ProxyConfig) RPCAddress() string {
	return net.JoinHostPort(c.RPCBindIP, strconv.Itoa(int(c.RPCPort)))
}

// ExecutionEndpoints returns the execution endpoints, nil when none are configured.
func (c *ProxyConfig) ExecutionEndpoints() []string {
	if len(c.ExecutionRPCs) == 0 {
		return nil
	}
	endpoints := make([]string, len(c.ExecutionRPCs))
	copy(endpoints, c.ExecutionRPCs)
	return endpoints
}

// ProofEndpoint parses ExecutionVerifiableAPI, returning nil when it is unset.
func (c *ProxyConfig) ProofEndpoint() (*url.URL, error) {
	if c.ExecutionVerifiableAPI == "" {
		return nil, nil
	}
	u, err := url.ParseRequestURI(c.ExecutionVerifiableAPI)
	if err != nil {
		return nil, fmt.Errorf("ExecutionVerifiableAPI '%s' is invalid: %v", c.ExecutionVerifiableAPI, err)
	}
	return u, nil
}

// LogSettings converts the logging fields for logutils.
func (c *ProxyConfig) LogSettings() logutils.LogSettings {
	return logutils.LogSettings{
		Enabled: c.LogEnabled,
		Level:   c.LogLevel,
		Colors:  c.LogColors,
		File: logutils.FileOptions{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSize,
			MaxBackups: c.LogMaxBackups,
			Compress:   c.LogCompress,
		},
	}
}

// Save dumps configuration to path.
func (c *ProxyConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *ProxyConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "    ")
	return string(data)
}
