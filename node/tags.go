package node

import (
	"context"
	"errors"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/consensus"
	proxyerrors "github.com/status-im/verif-proxy/errors"
)

// resolve turns tag into a concrete reference. Relative tags use the consensus heads:
// latest and pending map to the latest head, safe and finalized to the finalized head.
//
// In full mode a relative tag is sent as the head number, or literally while no head is
// known. Pending stays literal. In verifiable mode the referenced header is verified and
// unknown hashes fail.
func (n *Node) resolve(ctx context.Context, tag chain.BlockTag) (*blockRef, error) {
	if !n.mode.IsVerifiable() {
		return n.resolveFull(ctx, tag)
	}

	switch tag.Kind {
	case chain.Latest, chain.Pending:
		head, err := n.latestHead(ctx)
		if err != nil {
			return nil, err
		}
		header, err := n.headerAtHead(ctx, head)
		if err != nil {
			return nil, err
		}
		return verifiedRef(header), nil
	case chain.Finalized, chain.Safe:
		head, err := n.finalizedHead(ctx)
		if err != nil {
			return nil, err
		}
		header, err := n.headerAtHead(ctx, head)
		if err != nil {
			return nil, err
		}
		return verifiedRef(header), nil
	case chain.Number:
		header, err := n.headerByNumber(ctx, tag.Number)
		if err != nil {
			return nil, err
		}
		return verifiedRef(header), nil
	case chain.Hash:
		header, err := n.headerByHash(ctx, tag.Hash)
		if err != nil {
			return nil, err
		}
		if header == nil {
			return nil, proxyerrors.VerificationFailed("block %s is unknown", tag.Hash.Hex())
		}
		return verifiedRef(header), nil
	}
	return nil, proxyerrors.VerificationFailed("unsupported block tag %s", tag)
}

func (n *Node) resolveFull(ctx context.Context, tag chain.BlockTag) (*blockRef, error) {
	var (
		head *consensus.Head
		err  error
	)
	switch tag.Kind {
	case chain.Latest:
		head, err = n.consensus.LatestHead(ctx)
	case chain.Finalized, chain.Safe:
		head, err = n.consensus.FinalizedHead(ctx)
	default:
		return &blockRef{arg: tag}, nil
	}
	if errors.Is(err, consensus.ErrHeadUnavailable) {
		return &blockRef{arg: tag}, nil
	}
	if err != nil {
		return nil, err
	}
	return &blockRef{arg: chain.NumberTag(head.Number)}, nil
}
