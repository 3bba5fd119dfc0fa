package node

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"

	"github.com/status-im/verif-proxy/chain"
)

// DefaultPriorityFee is suggested when the latest block carries no transactions.
var DefaultPriorityFee = big.NewInt(params.GWei)

// GasPrice suggests base fee plus the median priority fee of the latest verified block.
func (n *Node) GasPrice(ctx context.Context) (*big.Int, error) {
	if !n.mode.IsVerifiable() {
		var price hexutil.Big
		if err := n.client.Call(ctx, &price, "eth_gasPrice"); err != nil {
			return nil, err
		}
		return price.ToInt(), nil
	}

	baseFee, tip, err := n.latestFees(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(baseFee, tip), nil
}

// MaxPriorityFeePerGas suggests the median priority fee of the latest verified block.
func (n *Node) MaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	if !n.mode.IsVerifiable() {
		var tip hexutil.Big
		if err := n.client.Call(ctx, &tip, "eth_maxPriorityFeePerGas"); err != nil {
			return nil, err
		}
		return tip.ToInt(), nil
	}

	_, tip, err := n.latestFees(ctx)
	return tip, err
}

func (n *Node) latestFees(ctx context.Context) (baseFee, tip *big.Int, err error) {
	ref, err := n.resolve(ctx, chain.LatestTag())
	if err != nil {
		return nil, nil, err
	}
	block, err := n.verifiedBlock(ctx, ref.header)
	if err != nil {
		return nil, nil, err
	}
	baseFee = new(big.Int)
	if ref.header.BaseFee != nil {
		baseFee.Set(ref.header.BaseFee)
	}
	return baseFee, medianTip(block.Transactions(), baseFee), nil
}

func medianTip(txs []chain.Transaction, baseFee *big.Int) *big.Int {
	if len(txs) == 0 {
		return new(big.Int).Set(DefaultPriorityFee)
	}
	tips := make([]*big.Int, len(txs))
	for i, tx := range txs {
		tips[i] = tx.EffectiveTip(baseFee)
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i].Cmp(tips[j]) < 0 })
	return tips[len(tips)/2]
}
