package ethereum

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/status-im/verif-proxy/chain"
)

// Network is the Ethereum L1 chain variant.
type Network struct {
	name   string
	config *params.ChainConfig
	signer types.Signer
}

var _ chain.Network = (*Network)(nil)

func NewNetwork(name string, config *params.ChainConfig) *Network {
	return &Network{name: name, config: config, signer: types.LatestSignerForChainID(config.ChainID)}
}

// ForName returns the network for one of mainnet, sepolia or holesky.
func ForName(name string) (*Network, error) {
	switch name {
	case "mainnet":
		return NewNetwork(name, params.MainnetChainConfig), nil
	case "sepolia":
		return NewNetwork(name, params.SepoliaChainConfig), nil
	case "holesky":
		return NewNetwork(name, params.HoleskyChainConfig), nil
	}
	return nil, fmt.Errorf("unsupported network %q", name)
}

func (n *Network) Name() string {
	return n.name
}

func (n *Network) ChainConfig() *params.ChainConfig {
	return n.config
}

func (n *Network) DecodeBlock(raw json.RawMessage) (chain.Block, error) {
	return decodeBlock(raw, n.signer)
}

func (n *Network) DecodeTransaction(raw json.RawMessage) (chain.Transaction, error) {
	return decodeTransaction(raw, n.signer)
}

func (n *Network) DecodeReceipt(raw json.RawMessage) (chain.Receipt, error) {
	return decodeReceipt(raw)
}

func (n *Network) DecodeTransactionRequest(raw json.RawMessage) (chain.TransactionRequest, error) {
	return decodeTransactionRequest(raw)
}

// VerifyReceipts checks the receipts of a verified full block: each one against its
// transaction, and all of them against the receipts root of the header.
func (n *Network) VerifyReceipts(block chain.Block, receipts []chain.Receipt) error {
	if !block.HasFullTransactions() {
		return errHashOnlyBlock
	}
	txs := block.Transactions()
	if len(receipts) != len(txs) {
		return fmt.Errorf("block has %d transactions, endpoint returned %d receipts", len(txs), len(receipts))
	}

	header := block.Header()
	hash := header.Hash()
	list := make(types.Receipts, len(receipts))
	var (
		gas  uint64
		logs uint
	)
	for i, r := range receipts {
		receipt, ok := r.(*Receipt)
		if !ok {
			return fmt.Errorf("receipt %d is not an ethereum receipt", i)
		}
		tx, ok := txs[i].(*Transaction)
		if !ok {
			return fmt.Errorf("transaction %d is not an ethereum transaction", i)
		}
		if err := receipt.verify(header, hash, tx, i, gas, logs); err != nil {
			return err
		}
		gas = receipt.receipt.CumulativeGasUsed
		logs += uint(len(receipt.receipt.Logs))
		list[i] = receipt.receipt
	}
	if gas != header.GasUsed {
		return fmt.Errorf("receipts use %d gas, header has %d", gas, header.GasUsed)
	}
	if root := types.DeriveSha(list, trie.NewStackTrie(nil)); root != header.ReceiptHash {
		return fmt.Errorf("receipts root mismatch: derived %s, header %s", root.Hex(), header.ReceiptHash.Hex())
	}
	return nil
}

func (n *Network) TransactionHash(raw []byte) (common.Hash, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}
