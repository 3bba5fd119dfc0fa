package node

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/status-im/verif-proxy/chain"
)

// Call executes request at tag and returns the output. In verifiable mode the call runs on
// the local EVM over proven state; the endpoint only contributes an access list hint.
func (n *Node) Call(ctx context.Context, request json.RawMessage, tag chain.BlockTag) ([]byte, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !n.mode.IsVerifiable() {
		var out hexutil.Bytes
		if err := n.client.Call(ctx, &out, "eth_call", request, ref.arg); err != nil {
			return nil, err
		}
		return out, nil
	}

	result, err := n.execute(ctx, request, ref)
	if err != nil {
		return nil, err
	}
	return result.ReturnData, nil
}

// EstimateGas returns the gas used by request at tag. In verifiable mode this is the gas
// of the local execution.
func (n *Node) EstimateGas(ctx context.Context, request json.RawMessage, tag chain.BlockTag) (uint64, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return 0, err
	}
	if !n.mode.IsVerifiable() {
		var gas hexutil.Uint64
		if err := n.client.Call(ctx, &gas, "eth_estimateGas", request, ref.arg); err != nil {
			return 0, err
		}
		return uint64(gas), nil
	}

	result, err := n.execute(ctx, request, ref)
	if err != nil {
		return 0, err
	}
	return result.UsedGas, nil
}

func (n *Node) execute(ctx context.Context, request json.RawMessage, ref *blockRef) (*core.ExecutionResult, error) {
	req, err := n.network.DecodeTransactionRequest(request)
	if err != nil {
		return nil, err
	}
	msg, err := req.Message(ref.header)
	if err != nil {
		return nil, err
	}

	result, err := n.evm.Call(ctx, ref.header, msg, n.accessListHint(ctx, request, ref))
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, revertError(result)
	}
	return result, nil
}

// accessListHint asks the endpoint which state request touches. A failure yields no hint.
func (n *Node) accessListHint(ctx context.Context, request json.RawMessage, ref *blockRef) types.AccessList {
	var result struct {
		AccessList types.AccessList `json:"accessList"`
	}
	if err := n.client.Call(ctx, &result, "eth_createAccessList", request, ref.arg); err != nil {
		n.log.Debug("access list hint unavailable", zap.Error(err))
		return nil
	}
	return result.AccessList
}

func revertError(result *core.ExecutionResult) error {
	if len(result.Revert()) == 0 {
		return result.Err
	}
	reason, err := abi.UnpackRevert(result.Revert())
	if err != nil {
		return fmt.Errorf("%w: %s", vm.ErrExecutionReverted, hexutil.Encode(result.Revert()))
	}
	return fmt.Errorf("%w: %s", vm.ErrExecutionReverted, reason)
}
