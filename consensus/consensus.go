package consensus

//go:generate mockgen -package=mock_consensus -source=consensus.go -destination=mock/consensus.go

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrHeadUnavailable is returned while no verified head is known.
var ErrHeadUnavailable = errors.New("verified head unavailable")

// Consensus supplies the execution heads verified by a consensus client.
type Consensus interface {
	ChainID() uint64
	LatestHead(ctx context.Context) (*Head, error)
	FinalizedHead(ctx context.Context) (*Head, error)
	SyncStatus(ctx context.Context) (*SyncStatus, error)
}

// Head summarizes a verified execution payload header.
type Head struct {
	Number           uint64
	Hash             common.Hash
	ParentHash       common.Hash
	StateRoot        common.Hash
	ReceiptsRoot     common.Hash
	TransactionsRoot common.Hash
	Timestamp        uint64
	GasLimit         uint64
	GasUsed          uint64
	BaseFee          *big.Int
	FeeRecipient     common.Address
}

// HeadFromHeader summarizes header.
func HeadFromHeader(header *types.Header) *Head {
	head := &Head{
		Number:           header.Number.Uint64(),
		Hash:             header.Hash(),
		ParentHash:       header.ParentHash,
		StateRoot:        header.Root,
		ReceiptsRoot:     header.ReceiptHash,
		TransactionsRoot: header.TxHash,
		Timestamp:        header.Time,
		GasLimit:         header.GasLimit,
		GasUsed:          header.GasUsed,
		FeeRecipient:     header.Coinbase,
	}
	if header.BaseFee != nil {
		head.BaseFee = new(big.Int).Set(header.BaseFee)
	}
	return head
}

// SyncStatus is the eth_syncing answer. It encodes as false when not syncing.
type SyncStatus struct {
	Syncing       bool
	StartingBlock uint64
	CurrentBlock  uint64
	HighestBlock  uint64
}

func (s SyncStatus) MarshalJSON() ([]byte, error) {
	if !s.Syncing {
		return json.Marshal(false)
	}
	return json.Marshal(map[string]hexutil.Uint64{
		"startingBlock": hexutil.Uint64(s.StartingBlock),
		"currentBlock":  hexutil.Uint64(s.CurrentBlock),
		"highestBlock":  hexutil.Uint64(s.HighestBlock),
	})
}
