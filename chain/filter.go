package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/filters"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// LogFilter is the criteria of eth_getLogs and eth_newFilter.
type LogFilter struct {
	BlockHash *common.Hash
	FromBlock *BlockTag
	ToBlock   *BlockTag
	Addresses []common.Address
	// Topics holds per position alternatives. An empty position matches anything.
	Topics [][]common.Hash
}

type logFilterJSON struct {
	BlockHash *common.Hash    `json:"blockHash,omitempty"`
	FromBlock *BlockTag       `json:"fromBlock,omitempty"`
	ToBlock   *BlockTag       `json:"toBlock,omitempty"`
	Address   json.RawMessage `json:"address,omitempty"`
	Topics    []interface{}   `json:"topics,omitempty"`
}

// UnmarshalJSON accepts the criteria the way go-ethereum's filter API does.
func (f *LogFilter) UnmarshalJSON(data []byte) error {
	var criteria filters.FilterCriteria
	if err := criteria.UnmarshalJSON(data); err != nil {
		return err
	}
	out := LogFilter{BlockHash: criteria.BlockHash}
	var err error
	if out.FromBlock, err = tagOf(criteria.FromBlock); err != nil {
		return err
	}
	if out.ToBlock, err = tagOf(criteria.ToBlock); err != nil {
		return err
	}
	if len(criteria.Addresses) > 0 {
		out.Addresses = criteria.Addresses
	}
	if len(criteria.Topics) > 0 {
		out.Topics = criteria.Topics
	}
	*f = out
	return nil
}

// tagOf maps the block numbers of filters.FilterCriteria, where tags are negative, onto BlockTag.
func tagOf(number *big.Int) (*BlockTag, error) {
	if number == nil {
		return nil, nil
	}
	var tag BlockTag
	switch {
	case number.Sign() >= 0:
		tag = NumberTag(number.Uint64())
	case number.Int64() == gethrpc.LatestBlockNumber.Int64():
		tag = LatestTag()
	case number.Int64() == gethrpc.PendingBlockNumber.Int64():
		tag = PendingTag()
	case number.Int64() == gethrpc.FinalizedBlockNumber.Int64():
		tag = FinalizedTag()
	case number.Int64() == gethrpc.SafeBlockNumber.Int64():
		tag = SafeTag()
	default:
		return nil, fmt.Errorf("unsupported block number %s", number)
	}
	return &tag, nil
}

func (f LogFilter) MarshalJSON() ([]byte, error) {
	out := logFilterJSON{BlockHash: f.BlockHash, FromBlock: f.FromBlock, ToBlock: f.ToBlock}
	if len(f.Addresses) > 0 {
		address, err := json.Marshal(f.Addresses)
		if err != nil {
			return nil, err
		}
		out.Address = address
	}
	for _, alternatives := range f.Topics {
		if len(alternatives) == 0 {
			out.Topics = append(out.Topics, nil)
			continue
		}
		out.Topics = append(out.Topics, alternatives)
	}
	return json.Marshal(out)
}

// WithRange returns a copy of f restricted to blocks [from, to].
func (f LogFilter) WithRange(from, to uint64) LogFilter {
	fromTag, toTag := NumberTag(from), NumberTag(to)
	f.BlockHash = nil
	f.FromBlock = &fromTag
	f.ToBlock = &toTag
	return f
}

// Matches reports whether log satisfies the address and topic criteria.
func (f LogFilter) Matches(log *types.Log) bool {
	if len(f.Addresses) > 0 && !containsAddress(f.Addresses, log.Address) {
		return false
	}
	if len(f.Topics) > len(log.Topics) {
		return false
	}
	for i, alternatives := range f.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if !containsHash(alternatives, log.Topics[i]) {
			return false
		}
	}
	return true
}

func containsAddress(list []common.Address, address common.Address) bool {
	for _, a := range list {
		if a == address {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, hash common.Hash) bool {
	for _, h := range list {
		if h == hash {
			return true
		}
	}
	return false
}
