package rpcfilters

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/verif-proxy/chain"
)

// Kind tells what a filter reports.
type Kind int

const (
	LogsFilter Kind = iota
	BlocksFilter
	PendingTransactionsFilter
)

func (k Kind) String() string {
	switch k {
	case LogsFilter:
		return "logs"
	case BlocksFilter:
		return "blocks"
	case PendingTransactionsFilter:
		return "pendingTransactions"
	}
	return "unknown"
}

type filter interface {
	kind() Kind
}

// cursorFilter reports changes in blocks after cursor. The registry lock guards cursor.
type cursorFilter struct {
	criteria *chain.LogFilter
	cursor   uint64
}

func (f *cursorFilter) kind() Kind {
	if f.criteria != nil {
		return LogsFilter
	}
	return BlocksFilter
}

// window returns the blocks a poll at head must cover, or ok=false when there is nothing new.
func (f *cursorFilter) window(head uint64) (from, to uint64, ok bool) {
	from, to = f.cursor+1, head
	if f.criteria != nil {
		if tag := f.criteria.FromBlock; tag != nil && tag.Kind == chain.Number && tag.Number > from {
			from = tag.Number
		}
		if tag := f.criteria.ToBlock; tag != nil && tag.Kind == chain.Number && tag.Number < to {
			to = tag.Number
		}
	}
	return from, to, from <= to
}

// hashFilter buffers hashes pushed into it until the next poll.
type hashFilter struct {
	hashes []common.Hash
}

func (f *hashFilter) kind() Kind {
	return PendingTransactionsFilter
}

// add adds a hash to the hashFilter
func (f *hashFilter) add(hash common.Hash) {
	if len(f.hashes) >= maxPendingHashes {
		f.hashes = f.hashes[1:]
	}
	f.hashes = append(f.hashes, hash)
}

// pop returns all the hashes stored in the hashFilter and clears the hashFilter contents
func (f *hashFilter) pop() []common.Hash {
	hashes := f.hashes
	f.hashes = nil
	if hashes == nil {
		return []common.Hash{}
	}
	return hashes
}
