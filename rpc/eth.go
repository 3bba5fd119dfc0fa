package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/consensus"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
)

// codeCallFailed is the JSON-RPC error code of every failure of a known method.
const codeCallFailed = 1

// Backend answers the eth and net namespaces. *node.Node implements it.
type Backend interface {
	GetBalance(ctx context.Context, address common.Address, tag chain.BlockTag) (*big.Int, error)
	GetTransactionCount(ctx context.Context, address common.Address, tag chain.BlockTag) (uint64, error)
	GetCode(ctx context.Context, address common.Address, tag chain.BlockTag) ([]byte, error)
	GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, tag chain.BlockTag) (*big.Int, error)

	GetBlockByNumber(ctx context.Context, tag chain.BlockTag, fullTx bool) (json.RawMessage, error)
	GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (json.RawMessage, error)
	GetBlockTransactionCountByHash(ctx context.Context, hash common.Hash) (*uint64, error)
	GetBlockTransactionCountByNumber(ctx context.Context, tag chain.BlockTag) (*uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)

	GetTransactionByHash(ctx context.Context, hash common.Hash) (json.RawMessage, error)
	GetTransactionByBlockHashAndIndex(ctx context.Context, blockHash common.Hash, index uint64) (json.RawMessage, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (json.RawMessage, error)
	SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error)

	GetLogs(ctx context.Context, filter chain.LogFilter) ([]*types.Log, error)
	NewFilter(ctx context.Context, criteria chain.LogFilter) (uint64, error)
	NewBlockFilter(ctx context.Context) (uint64, error)
	NewPendingTransactionFilter() uint64
	GetFilterChanges(ctx context.Context, id uint64) (interface{}, error)
	UninstallFilter(id uint64) (bool, error)

	Call(ctx context.Context, request json.RawMessage, tag chain.BlockTag) ([]byte, error)
	EstimateGas(ctx context.Context, request json.RawMessage, tag chain.BlockTag) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error)

	ChainID() uint64
	NetVersion() uint64
	Syncing(ctx context.Context) (*consensus.SyncStatus, error)
	Coinbase(ctx context.Context) (common.Address, error)
	ClientVersion() string
}

// storageSlot accepts a storage key as a 32 byte hash or as a shorter hex quantity.
type storageSlot common.Hash

func (s *storageSlot) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if len(digits) > 2*common.HashLength {
		return fmt.Errorf("storage key %q is longer than 32 bytes", text)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return fmt.Errorf("invalid storage key %q: %w", text, err)
	}
	*s = storageSlot(common.BytesToHash(b))
	return nil
}

// callError is answered with codeCallFailed and the error text as message.
type callError struct {
	err error
}

func (e *callError) Error() string {
	return e.err.Error()
}

func (e *callError) ErrorCode() int {
	return codeCallFailed
}

func (e *callError) Unwrap() error {
	return e.err
}

type requestIDKey struct{}

func withRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey{}, uuid.NewString())
}

// requestID is the id the HTTP transport attached to ctx, or a fresh one.
func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return uuid.NewString()
}

// observe runs one method call, records it and wraps its error for the client.
func observe[R any](ctx context.Context, log *zap.Logger, method string, call func() (R, error)) (R, error) {
	start := time.Now()
	result, err := call()
	metrics.ObserveRPC(method, err, time.Since(start))
	if err == nil {
		return result, nil
	}

	log = log.With(
		zap.String("request", requestID(ctx)),
		zap.String("method", method),
		zap.String("code", string(errors.CodeOf(err))),
		zap.Error(err),
	)
	if stderrors.Is(err, errors.ErrVerificationFailed) {
		metrics.VerificationFailed(method)
		log.Warn("verification failed")
	} else {
		log.Debug("request failed")
	}
	return result, &callError{err: err}
}

func tagOrLatest(tag *chain.BlockTag) chain.BlockTag {
	if tag == nil {
		return chain.LatestTag()
	}
	return *tag
}

// EthAPI is the eth namespace. Trailing pointer arguments are optional.
type EthAPI struct {
	b   Backend
	log *zap.Logger
}

func NewEthAPI(b Backend) *EthAPI {
	return &EthAPI{b: b, log: logutils.ZapLogger().Named("rpc")}
}

func (api *EthAPI) GetBalance(ctx context.Context, address common.Address, tag *chain.BlockTag) (*hexutil.Big, error) {
	return observe(ctx, api.log, "eth_getBalance", func() (*hexutil.Big, error) {
		balance, err := api.b.GetBalance(ctx, address, tagOrLatest(tag))
		return (*hexutil.Big)(balance), err
	})
}

func (api *EthAPI) GetTransactionCount(ctx context.Context, address common.Address, tag *chain.BlockTag) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_getTransactionCount", func() (hexutil.Uint64, error) {
		nonce, err := api.b.GetTransactionCount(ctx, address, tagOrLatest(tag))
		return hexutil.Uint64(nonce), err
	})
}

func (api *EthAPI) GetCode(ctx context.Context, address common.Address, tag *chain.BlockTag) (hexutil.Bytes, error) {
	return observe(ctx, api.log, "eth_getCode", func() (hexutil.Bytes, error) {
		return api.b.GetCode(ctx, address, tagOrLatest(tag))
	})
}

func (api *EthAPI) GetStorageAt(ctx context.Context, address common.Address, slot storageSlot, tag *chain.BlockTag) (*hexutil.Big, error) {
	return observe(ctx, api.log, "eth_getStorageAt", func() (*hexutil.Big, error) {
		value, err := api.b.GetStorageAt(ctx, address, common.Hash(slot), tagOrLatest(tag))
		return (*hexutil.Big)(value), err
	})
}

func (api *EthAPI) GetBlockByNumber(ctx context.Context, tag chain.BlockTag, fullTx *bool) (json.RawMessage, error) {
	return observe(ctx, api.log, "eth_getBlockByNumber", func() (json.RawMessage, error) {
		return api.b.GetBlockByNumber(ctx, tag, fullTx != nil && *fullTx)
	})
}

func (api *EthAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx *bool) (json.RawMessage, error) {
	return observe(ctx, api.log, "eth_getBlockByHash", func() (json.RawMessage, error) {
		return api.b.GetBlockByHash(ctx, hash, fullTx != nil && *fullTx)
	})
}

// GetBlockTransactionCountByHash answers null for unknown blocks.
func (api *EthAPI) GetBlockTransactionCountByHash(ctx context.Context, hash common.Hash) (*hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_getBlockTransactionCountByHash", func() (*hexutil.Uint64, error) {
		count, err := api.b.GetBlockTransactionCountByHash(ctx, hash)
		return (*hexutil.Uint64)(count), err
	})
}

func (api *EthAPI) GetBlockTransactionCountByNumber(ctx context.Context, tag *chain.BlockTag) (*hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_getBlockTransactionCountByNumber", func() (*hexutil.Uint64, error) {
		count, err := api.b.GetBlockTransactionCountByNumber(ctx, tagOrLatest(tag))
		return (*hexutil.Uint64)(count), err
	})
}

func (api *EthAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_blockNumber", func() (hexutil.Uint64, error) {
		number, err := api.b.BlockNumber(ctx)
		return hexutil.Uint64(number), err
	})
}

func (api *EthAPI) GetTransactionByHash(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	return observe(ctx, api.log, "eth_getTransactionByHash", func() (json.RawMessage, error) {
		return api.b.GetTransactionByHash(ctx, hash)
	})
}

func (api *EthAPI) GetTransactionByBlockHashAndIndex(ctx context.Context, hash common.Hash, index hexutil.Uint64) (json.RawMessage, error) {
	return observe(ctx, api.log, "eth_getTransactionByBlockHashAndIndex", func() (json.RawMessage, error) {
		return api.b.GetTransactionByBlockHashAndIndex(ctx, hash, uint64(index))
	})
}

func (api *EthAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	return observe(ctx, api.log, "eth_getTransactionReceipt", func() (json.RawMessage, error) {
		return api.b.GetTransactionReceipt(ctx, hash)
	})
}

func (api *EthAPI) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	return observe(ctx, api.log, "eth_sendRawTransaction", func() (common.Hash, error) {
		return api.b.SendRawTransaction(ctx, raw)
	})
}

func (api *EthAPI) GetLogs(ctx context.Context, filter chain.LogFilter) ([]*types.Log, error) {
	return observe(ctx, api.log, "eth_getLogs", func() ([]*types.Log, error) {
		return api.b.GetLogs(ctx, filter)
	})
}

func (api *EthAPI) NewFilter(ctx context.Context, criteria chain.LogFilter) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_newFilter", func() (hexutil.Uint64, error) {
		id, err := api.b.NewFilter(ctx, criteria)
		return hexutil.Uint64(id), err
	})
}

func (api *EthAPI) NewBlockFilter(ctx context.Context) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_newBlockFilter", func() (hexutil.Uint64, error) {
		id, err := api.b.NewBlockFilter(ctx)
		return hexutil.Uint64(id), err
	})
}

func (api *EthAPI) NewPendingTransactionFilter(ctx context.Context) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_newPendingTransactionFilter", func() (hexutil.Uint64, error) {
		return hexutil.Uint64(api.b.NewPendingTransactionFilter()), nil
	})
}

func (api *EthAPI) GetFilterChanges(ctx context.Context, id hexutil.Uint64) (interface{}, error) {
	return observe(ctx, api.log, "eth_getFilterChanges", func() (interface{}, error) {
		return api.b.GetFilterChanges(ctx, uint64(id))
	})
}

func (api *EthAPI) UninstallFilter(ctx context.Context, id hexutil.Uint64) (bool, error) {
	return observe(ctx, api.log, "eth_uninstallFilter", func() (bool, error) {
		return api.b.UninstallFilter(uint64(id))
	})
}

func (api *EthAPI) Call(ctx context.Context, request json.RawMessage, tag *chain.BlockTag) (hexutil.Bytes, error) {
	return observe(ctx, api.log, "eth_call", func() (hexutil.Bytes, error) {
		return api.b.Call(ctx, request, tagOrLatest(tag))
	})
}

func (api *EthAPI) EstimateGas(ctx context.Context, request json.RawMessage, tag *chain.BlockTag) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_estimateGas", func() (hexutil.Uint64, error) {
		gas, err := api.b.EstimateGas(ctx, request, tagOrLatest(tag))
		return hexutil.Uint64(gas), err
	})
}

func (api *EthAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	return observe(ctx, api.log, "eth_gasPrice", func() (*hexutil.Big, error) {
		price, err := api.b.GasPrice(ctx)
		return (*hexutil.Big)(price), err
	})
}

func (api *EthAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	return observe(ctx, api.log, "eth_maxPriorityFeePerGas", func() (*hexutil.Big, error) {
		tip, err := api.b.MaxPriorityFeePerGas(ctx)
		return (*hexutil.Big)(tip), err
	})
}

func (api *EthAPI) ChainId(ctx context.Context) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "eth_chainId", func() (hexutil.Uint64, error) {
		return hexutil.Uint64(api.b.ChainID()), nil
	})
}

func (api *EthAPI) Syncing(ctx context.Context) (*consensus.SyncStatus, error) {
	return observe(ctx, api.log, "eth_syncing", func() (*consensus.SyncStatus, error) {
		return api.b.Syncing(ctx)
	})
}

func (api *EthAPI) Coinbase(ctx context.Context) (common.Address, error) {
	return observe(ctx, api.log, "eth_coinbase", func() (common.Address, error) {
		return api.b.Coinbase(ctx)
	})
}

func (api *EthAPI) GetClientVersion(ctx context.Context) (string, error) {
	return observe(ctx, api.log, "eth_getClientVersion", func() (string, error) {
		return api.b.ClientVersion(), nil
	})
}

// NetAPI is the net namespace.
type NetAPI struct {
	b   Backend
	log *zap.Logger
}

func NewNetAPI(b Backend) *NetAPI {
	return &NetAPI{b: b, log: logutils.ZapLogger().Named("rpc")}
}

// Version answers the chain id.
func (api *NetAPI) Version(ctx context.Context) (hexutil.Uint64, error) {
	return observe(ctx, api.log, "net_version", func() (hexutil.Uint64, error) {
		return hexutil.Uint64(api.b.NetVersion()), nil
	})
}

// NewAPI registers every namespace served by the proxy.
func NewAPI(b Backend) (*Registry, error) {
	r := NewRegistry()
	if err := r.Register("eth", NewEthAPI(b)); err != nil {
		return nil, err
	}
	if err := r.Register("net", NewNetAPI(b)); err != nil {
		return nil, err
	}
	return r, nil
}
