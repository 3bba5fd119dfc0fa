package node

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/consensus"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/rpcfilters"
)

const (
	DefaultMaxAncestorWalk = 256
	DefaultHeaderCacheTTL  = 10 * time.Minute
	headerCacheCapacity    = 4096
)

type Config struct {
	// MaxAncestorWalk bounds how many parent links are followed to verify an older block.
	MaxAncestorWalk uint64
	HeaderCacheTTL  time.Duration
}

// Node answers every domain query. In verifiable mode nothing is returned before it has
// been checked against the verified head, a proof or a root derived from verified data.
type Node struct {
	mode      *execution.Mode
	network   chain.Network
	consensus consensus.Consensus
	client    *execution.Client
	proofs    *execution.ProofClient
	evm       *execution.EVM
	filters   *rpcfilters.Registry

	headers *ttlcache.Cache[common.Hash, *types.Header]
	maxWalk uint64
	log     *zap.Logger
}

// New builds a node over already dialed clients. proofs may be nil in full mode.
func New(cfg Config, mode *execution.Mode, network chain.Network, cons consensus.Consensus, client *execution.Client, proofs *execution.ProofClient) (*Node, error) {
	if client == nil {
		return nil, errors.Configuration("no execution RPCs provided")
	}
	if mode.IsVerifiable() && proofs == nil {
		return nil, errors.Configuration("verifiable mode needs a proof client")
	}
	if cfg.MaxAncestorWalk == 0 {
		cfg.MaxAncestorWalk = DefaultMaxAncestorWalk
	}
	if cfg.HeaderCacheTTL == 0 {
		cfg.HeaderCacheTTL = DefaultHeaderCacheTTL
	}

	n := &Node{
		mode:      mode,
		network:   network,
		consensus: cons,
		client:    client,
		proofs:    proofs,
		headers: ttlcache.New[common.Hash, *types.Header](
			ttlcache.WithTTL[common.Hash, *types.Header](cfg.HeaderCacheTTL),
			ttlcache.WithCapacity[common.Hash, *types.Header](headerCacheCapacity),
		),
		maxWalk: cfg.MaxAncestorWalk,
		log:     logutils.ZapLogger().Named("node").With(zap.Stringer("mode", mode)),
	}
	if proofs != nil {
		n.evm = execution.NewEVM(network.ChainConfig(), proofs, client)
	}
	n.filters = rpcfilters.NewRegistry(n)
	go n.headers.Start()
	return n, nil
}

// Dial connects to the endpoints of mode and builds the node.
func Dial(ctx context.Context, cfg Config, mode *execution.Mode, network chain.Network, cons consensus.Consensus) (*Node, error) {
	client, err := execution.Dial(ctx, mode)
	if err != nil {
		return nil, err
	}
	var proofs *execution.ProofClient
	if mode.IsVerifiable() {
		proofs, err = execution.DialProof(ctx, mode)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return New(cfg, mode, network, cons, client, proofs)
}

func (n *Node) Mode() *execution.Mode {
	return n.mode
}

func (n *Node) Network() chain.Network {
	return n.network
}

// Close stops the header cache and closes the upstream clients.
func (n *Node) Close() {
	n.headers.Stop()
	n.client.Close()
	if n.proofs != nil {
		n.proofs.Close()
	}
}

func (n *Node) latestHead(ctx context.Context) (*consensus.Head, error) {
	head, err := n.consensus.LatestHead(ctx)
	if err != nil {
		return nil, errors.VerificationFailedWithCause(err, "latest verified head")
	}
	return head, nil
}

func (n *Node) finalizedHead(ctx context.Context) (*consensus.Head, error) {
	head, err := n.consensus.FinalizedHead(ctx)
	if err != nil {
		return nil, errors.VerificationFailedWithCause(err, "finalized verified head")
	}
	return head, nil
}
