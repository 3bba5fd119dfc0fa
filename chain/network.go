package chain

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// Network describes the wire shapes of one chain variant and the hooks needed to
// check them. The node and the RPC layer depend only on this interface.
type Network interface {
	Name() string
	ChainConfig() *params.ChainConfig

	DecodeBlock(raw json.RawMessage) (Block, error)
	DecodeTransaction(raw json.RawMessage) (Transaction, error)
	DecodeReceipt(raw json.RawMessage) (Receipt, error)
	DecodeTransactionRequest(raw json.RawMessage) (TransactionRequest, error)

	// VerifyReceipts checks the receipts of a verified block fetched with full
	// transactions: each against its transaction, all against the receipts root.
	VerifyReceipts(block Block, receipts []Receipt) error
	// TransactionHash is the hash a signed raw transaction will be known by.
	TransactionHash(raw []byte) (common.Hash, error)
}

// Block is a block as served by an execution endpoint.
type Block interface {
	json.Marshaler
	Header() *types.Header
	// DeclaredHash is the hash field reported by the endpoint.
	DeclaredHash() common.Hash
	TransactionHashes() []common.Hash
	// Transactions is nil unless the block was fetched with full transactions.
	Transactions() []Transaction
	HasFullTransactions() bool
	// VerifyBody checks transactions and withdrawals against the header roots.
	// It requires full transactions.
	VerifyBody() error
	// WithTransactionHashes returns the block with transaction bodies replaced by hashes.
	WithTransactionHashes() (Block, error)
}

// Transaction is a transaction as served by an execution endpoint. Its hash and sender
// are checked against its content when decoded.
type Transaction interface {
	json.Marshaler
	Hash() common.Hash
	// From is the sender recovered from the signature.
	From() common.Address
	BlockHash() *common.Hash
	BlockNumber() *uint64
	TransactionIndex() *uint64
	// EffectiveTip is the priority fee paid per gas at baseFee.
	EffectiveTip(baseFee *big.Int) *big.Int
	// VerifyGasPrice checks the declared gas price of a mined transaction.
	VerifyGasPrice(baseFee *big.Int) error
}

// Receipt is a receipt as served by an execution endpoint.
type Receipt interface {
	json.Marshaler
	TransactionHash() common.Hash
	BlockHash() common.Hash
	BlockNumber() uint64
	TransactionIndex() uint
	Logs() []*types.Log
}

// TransactionRequest is the call object of eth_call and eth_estimateGas.
type TransactionRequest interface {
	json.Marshaler
	From() common.Address
	To() *common.Address
	// Message converts the request for local execution on top of header.
	Message(header *types.Header) (*core.Message, error)
}
