package node

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/consensus"
	"github.com/status-im/verif-proxy/params"
)

// ChainID is the chain id the consensus client follows.
func (n *Node) ChainID() uint64 {
	return n.consensus.ChainID()
}

// NetVersion equals the chain id on every supported network.
func (n *Node) NetVersion() uint64 {
	return n.consensus.ChainID()
}

func (n *Node) Syncing(ctx context.Context) (*consensus.SyncStatus, error) {
	return n.consensus.SyncStatus(ctx)
}

// Coinbase is the fee recipient of the latest verified head.
func (n *Node) Coinbase(ctx context.Context) (common.Address, error) {
	head, err := n.latestHead(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return head.FeeRecipient, nil
}

func (n *Node) ClientVersion() string {
	return params.ClientVersion()
}

func (n *Node) NewFilter(ctx context.Context, criteria chain.LogFilter) (uint64, error) {
	return n.filters.NewLogFilter(ctx, criteria)
}

func (n *Node) NewBlockFilter(ctx context.Context) (uint64, error) {
	return n.filters.NewBlockFilter(ctx)
}

func (n *Node) NewPendingTransactionFilter() uint64 {
	return n.filters.NewPendingTransactionFilter()
}

// GetFilterChanges returns logs for log filters and hashes for the other kinds.
func (n *Node) GetFilterChanges(ctx context.Context, id uint64) (interface{}, error) {
	return n.filters.Changes(ctx, id)
}

func (n *Node) UninstallFilter(id uint64) (bool, error) {
	if err := n.filters.Uninstall(id); err != nil {
		return false, err
	}
	return true, nil
}
