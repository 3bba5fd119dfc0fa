package executiontest

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/verif-proxy/chain"
)

var errUnknownBlock = errors.New("unknown block")

// Tamper rewrites the answer of method before it is sent. Returning nil keeps the original.
type Tamper func(method string, result json.RawMessage) json.RawMessage

// Backend is an execution endpoint serving a Chain. It records every call it receives.
type Backend struct {
	Chain *Chain

	// CallResult and EstimateResult answer eth_call and eth_estimateGas.
	CallResult     hexutil.Bytes
	EstimateResult hexutil.Uint64
	GasPriceResult *big.Int
	AccessList     types.AccessList

	mu       sync.Mutex
	tampers  map[string]Tamper
	calls    []string
	sent     []hexutil.Bytes
	sentHash *common.Hash
}

func NewBackend(c *Chain) *Backend {
	return &Backend{
		Chain:          c,
		CallResult:     hexutil.Bytes{0x01},
		EstimateResult: 21000,
		GasPriceResult: big.NewInt(9_000_000_000),
		tampers:        make(map[string]Tamper),
	}
}

// Tamper installs fn for method, replacing any earlier one.
func (b *Backend) Tamper(method string, fn Tamper) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tampers[method] = fn
}

// ReplaceResult makes method answer result.
func (b *Backend) ReplaceResult(method string, result interface{}) {
	b.Tamper(method, func(string, json.RawMessage) json.RawMessage {
		return mustMarshal(result)
	})
}

// AnswerSendWith makes eth_sendRawTransaction return hash.
func (b *Backend) AnswerSendWith(hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sentHash = &hash
}

// Calls returns the methods received so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *Backend) CallCount(method string) int {
	count := 0
	for _, call := range b.Calls() {
		if call == method {
			count++
		}
	}
	return count
}

func (b *Backend) Sent() []hexutil.Bytes {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hexutil.Bytes(nil), b.sent...)
}

func (b *Backend) answer(method string, v interface{}) (json.RawMessage, error) {
	b.mu.Lock()
	b.calls = append(b.calls, method)
	tamper := b.tampers[method]
	b.mu.Unlock()

	result := mustMarshal(v)
	if tamper != nil {
		if replaced := tamper(method, result); replaced != nil {
			result = replaced
		}
	}
	return result, nil
}

// Server returns an RPC server exposing the backend under the eth namespace.
func (b *Backend) Server() *gethrpc.Server {
	server := gethrpc.NewServer()
	if err := server.RegisterName("eth", &ethService{b}); err != nil {
		panic(err)
	}
	return server
}

// Dial returns an in-process client of a fresh server.
func (b *Backend) Dial() *gethrpc.Client {
	return gethrpc.DialInProc(b.Server())
}

func (b *Backend) blockByTag(tag chain.BlockTag) *Block {
	switch tag.Kind {
	case chain.Number:
		return b.Chain.ByNumber(tag.Number)
	case chain.Hash:
		return b.Chain.ByHash(tag.Hash)
	case chain.Finalized, chain.Safe:
		if len(b.Chain.Blocks) > 2 {
			return b.Chain.Blocks[len(b.Chain.Blocks)-3]
		}
		return b.Chain.Blocks[0]
	default:
		return b.Chain.Latest()
	}
}

func (b *Backend) numberOf(tag chain.BlockTag) uint64 {
	if tag.Kind == chain.Number {
		return tag.Number
	}
	if block := b.blockByTag(tag); block != nil {
		return block.Number()
	}
	return b.Chain.Latest().Number()
}

type ethService struct {
	b *Backend
}

func (s *ethService) ChainId() (json.RawMessage, error) {
	return s.b.answer("eth_chainId", (*hexutil.Big)(s.b.Chain.Config.ChainID))
}

func (s *ethService) BlockNumber() (json.RawMessage, error) {
	return s.b.answer("eth_blockNumber", hexutil.Uint64(s.b.Chain.Latest().Number()))
}

func (s *ethService) GetBlockByNumber(tag chain.BlockTag, fullTx bool) (json.RawMessage, error) {
	block := s.b.blockByTag(tag)
	if block == nil {
		return s.b.answer("eth_getBlockByNumber", nil)
	}
	return s.b.answer("eth_getBlockByNumber", block.JSON(fullTx))
}

func (s *ethService) GetBlockByHash(hash common.Hash, fullTx bool) (json.RawMessage, error) {
	block := s.b.Chain.ByHash(hash)
	if block == nil {
		return s.b.answer("eth_getBlockByHash", nil)
	}
	return s.b.answer("eth_getBlockByHash", block.JSON(fullTx))
}

func (s *ethService) GetBlockReceipts(tag chain.BlockTag) (json.RawMessage, error) {
	block := s.b.blockByTag(tag)
	if block == nil {
		return s.b.answer("eth_getBlockReceipts", nil)
	}
	return s.b.answer("eth_getBlockReceipts", block.ReceiptsJSON())
}

func (s *ethService) GetBlockTransactionCountByHash(hash common.Hash) (json.RawMessage, error) {
	block := s.b.Chain.ByHash(hash)
	if block == nil {
		return s.b.answer("eth_getBlockTransactionCountByHash", nil)
	}
	return s.b.answer("eth_getBlockTransactionCountByHash", hexutil.Uint(len(block.Transactions)))
}

func (s *ethService) GetBlockTransactionCountByNumber(tag chain.BlockTag) (json.RawMessage, error) {
	block := s.b.blockByTag(tag)
	if block == nil {
		return s.b.answer("eth_getBlockTransactionCountByNumber", nil)
	}
	return s.b.answer("eth_getBlockTransactionCountByNumber", hexutil.Uint(len(block.Transactions)))
}

func (s *ethService) GetTransactionByHash(hash common.Hash) (json.RawMessage, error) {
	block, index := s.b.Chain.TransactionLocation(hash)
	if block == nil {
		return s.b.answer("eth_getTransactionByHash", nil)
	}
	return s.b.answer("eth_getTransactionByHash", block.TransactionJSON(index))
}

func (s *ethService) GetTransactionByBlockHashAndIndex(hash common.Hash, index hexutil.Uint) (json.RawMessage, error) {
	block := s.b.Chain.ByHash(hash)
	if block == nil || int(index) >= len(block.Transactions) {
		return s.b.answer("eth_getTransactionByBlockHashAndIndex", nil)
	}
	return s.b.answer("eth_getTransactionByBlockHashAndIndex", block.TransactionJSON(int(index)))
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (json.RawMessage, error) {
	block, index := s.b.Chain.TransactionLocation(hash)
	if block == nil {
		return s.b.answer("eth_getTransactionReceipt", nil)
	}
	return s.b.answer("eth_getTransactionReceipt", block.ReceiptJSON(index))
}

func (s *ethService) GetLogs(filter chain.LogFilter) (json.RawMessage, error) {
	var candidates []*types.Log
	if filter.BlockHash != nil {
		block := s.b.Chain.ByHash(*filter.BlockHash)
		if block == nil {
			return nil, errUnknownBlock
		}
		candidates = s.b.Chain.Logs(block.Number(), block.Number())
	} else {
		from, to := uint64(FirstBlock), s.b.Chain.Latest().Number()
		if filter.FromBlock != nil {
			from = s.b.numberOf(*filter.FromBlock)
		}
		if filter.ToBlock != nil {
			to = s.b.numberOf(*filter.ToBlock)
		}
		candidates = s.b.Chain.Logs(from, to)
	}
	logs := []*types.Log{}
	for _, log := range candidates {
		if filter.Matches(log) {
			logs = append(logs, log)
		}
	}
	return s.b.answer("eth_getLogs", logs)
}

func (s *ethService) GetBalance(address common.Address, tag chain.BlockTag) (json.RawMessage, error) {
	if s.b.blockByTag(tag) == nil {
		return nil, errUnknownBlock
	}
	return s.b.answer("eth_getBalance", (*hexutil.Big)(s.b.Chain.State.Balance(address)))
}

func (s *ethService) GetTransactionCount(address common.Address, tag chain.BlockTag) (json.RawMessage, error) {
	if s.b.blockByTag(tag) == nil {
		return nil, errUnknownBlock
	}
	return s.b.answer("eth_getTransactionCount", hexutil.Uint64(s.b.Chain.State.Nonce(address)))
}

func (s *ethService) GetCode(address common.Address, tag chain.BlockTag) (json.RawMessage, error) {
	if s.b.blockByTag(tag) == nil {
		return nil, errUnknownBlock
	}
	return s.b.answer("eth_getCode", hexutil.Bytes(s.b.Chain.State.Code(address)))
}

func (s *ethService) GetStorageAt(address common.Address, slot common.Hash, tag chain.BlockTag) (json.RawMessage, error) {
	if s.b.blockByTag(tag) == nil {
		return nil, errUnknownBlock
	}
	value := s.b.Chain.State.StorageAt(address, slot)
	return s.b.answer("eth_getStorageAt", hexutil.Bytes(value.Bytes()))
}

func (s *ethService) GetProof(address common.Address, slots []string, tag chain.BlockTag) (json.RawMessage, error) {
	if s.b.blockByTag(tag) == nil {
		return nil, errUnknownBlock
	}
	keys := make([]common.Hash, len(slots))
	for i, slot := range slots {
		keys[i] = common.HexToHash(slot)
	}
	return s.b.answer("eth_getProof", s.b.Chain.State.Proof(address, keys))
}

func (s *ethService) CreateAccessList(request json.RawMessage, tag *chain.BlockTag) (json.RawMessage, error) {
	list := s.b.AccessList
	if list == nil {
		list = types.AccessList{}
	}
	return s.b.answer("eth_createAccessList", map[string]interface{}{
		"accessList": list,
		"gasUsed":    hexutil.Uint64(21000),
	})
}

func (s *ethService) Call(ctx context.Context, request json.RawMessage, tag *chain.BlockTag) (json.RawMessage, error) {
	return s.b.answer("eth_call", s.b.CallResult)
}

func (s *ethService) EstimateGas(request json.RawMessage, tag *chain.BlockTag) (json.RawMessage, error) {
	return s.b.answer("eth_estimateGas", s.b.EstimateResult)
}

func (s *ethService) GasPrice() (json.RawMessage, error) {
	return s.b.answer("eth_gasPrice", (*hexutil.Big)(s.b.GasPriceResult))
}

func (s *ethService) MaxPriorityFeePerGas() (json.RawMessage, error) {
	return s.b.answer("eth_maxPriorityFeePerGas", (*hexutil.Big)(GasTipCap))
}

func (s *ethService) SendRawTransaction(raw hexutil.Bytes) (json.RawMessage, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	s.b.sent = append(s.b.sent, raw)
	hash := tx.Hash()
	if s.b.sentHash != nil {
		hash = *s.b.sentHash
	}
	s.b.mu.Unlock()
	return s.b.answer("eth_sendRawTransaction", hash)
}

func (s *ethService) Syncing() (json.RawMessage, error) {
	return s.b.answer("eth_syncing", false)
}
