package node

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/verif-proxy/consensus"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution"
)

// fetchHeader returns the header the endpoint knows under hash, or nil. The result is not verified.
func (n *Node) fetchHeader(ctx context.Context, hash common.Hash) (*types.Header, error) {
	raw, err := n.client.CallRaw(ctx, "eth_getBlockByHash", hash, false)
	if err != nil || raw == nil {
		return nil, err
	}
	block, err := n.network.DecodeBlock(raw)
	if err != nil {
		return nil, errors.UpstreamRPC("eth_getBlockByHash", err)
	}
	return block.Header(), nil
}

// verifiedHeader returns the header of hash where hash itself is trusted: a consensus head
// or the parent hash of a verified header.
func (n *Node) verifiedHeader(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if item := n.headers.Get(hash); item != nil {
		return item.Value(), nil
	}
	header, err := n.fetchHeader(ctx, hash)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, errors.VerificationFailed("verified block %s is unknown to the execution endpoint", hash.Hex())
	}
	if header.Hash() != hash {
		return nil, errors.VerificationFailed("header served for %s hashes to %s", hash.Hex(), header.Hash().Hex())
	}
	n.headers.Set(hash, header, ttlcache.DefaultTTL)
	return header, nil
}

func (n *Node) headerAtHead(ctx context.Context, head *consensus.Head) (*types.Header, error) {
	return n.verifiedHeader(ctx, head.Hash)
}

// headerByNumber walks parent links down from the closest verified head at or above number.
func (n *Node) headerByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	start, err := n.latestHead(ctx)
	if err != nil {
		return nil, err
	}
	if number > start.Number {
		return nil, errors.VerificationFailed("block %d is beyond the verified head %d", number, start.Number)
	}
	if finalized, err := n.consensus.FinalizedHead(ctx); err == nil && finalized.Number >= number && finalized.Number <= start.Number {
		start = finalized
	}
	if start.Number-number > n.maxWalk {
		return nil, errors.VerificationFailed("block %d is more than %d blocks behind the verified head %d", number, n.maxWalk, start.Number)
	}

	header, err := n.headerAtHead(ctx, start)
	if err != nil {
		return nil, err
	}
	for header.Number.Uint64() > number {
		header, err = n.verifiedHeader(ctx, header.ParentHash)
		if err != nil {
			return nil, err
		}
	}
	return header, nil
}

// headerByHash returns nil when the endpoint does not know hash. A known block must sit
// on the verified chain.
func (n *Node) headerByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	if item := n.headers.Get(hash); item != nil {
		return item.Value(), nil
	}
	claimed, err := n.fetchHeader(ctx, hash)
	if err != nil || claimed == nil {
		return nil, err
	}
	header, err := n.headerByNumber(ctx, claimed.Number.Uint64())
	if err != nil {
		return nil, err
	}
	if header.Hash() != hash {
		n.log.Debug("block is not canonical", zap.Stringer("hash", hash), zap.Stringer("canonical", header.Hash()))
		return nil, errors.VerificationFailed("block %s is not on the verified chain", hash.Hex())
	}
	return header, nil
}

// blockRef is a resolved block reference: the argument to send upstream and, in verifiable
// mode, the verified header it points to.
type blockRef struct {
	arg    interface{}
	header *types.Header
}

func (r *blockRef) number() uint64 {
	return r.header.Number.Uint64()
}

func verifiedRef(header *types.Header) *blockRef {
	return &blockRef{arg: execution.BlockArg(header), header: header}
}
