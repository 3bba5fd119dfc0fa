package node

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution"
)

var errStorageValueTooLong = fmt.Errorf("storage value is longer than %d bytes", common.HashLength)

// proveAt fetches and verifies the proof of address and slots at ref.
func (n *Node) proveAt(ctx context.Context, ref *blockRef, address common.Address, slots ...common.Hash) (*execution.ProvenAccount, error) {
	return execution.ProveAccount(ctx, n.proofs, n.client, ref.header, address, slots, false)
}

func (n *Node) GetBalance(ctx context.Context, address common.Address, tag chain.BlockTag) (*big.Int, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	var balance hexutil.Big
	if err := n.client.Call(ctx, &balance, "eth_getBalance", address, ref.arg); err != nil {
		return nil, err
	}
	if !n.mode.IsVerifiable() {
		return balance.ToInt(), nil
	}

	account, err := n.proveAt(ctx, ref, address)
	if err != nil {
		return nil, err
	}
	if bigOrZero(account.Balance).Cmp(balance.ToInt()) != 0 {
		return nil, errors.VerificationFailed("balance of %s: endpoint reported %s, proof has %s", address.Hex(), balance.ToInt(), bigOrZero(account.Balance))
	}
	return balance.ToInt(), nil
}

func (n *Node) GetTransactionCount(ctx context.Context, address common.Address, tag chain.BlockTag) (uint64, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return 0, err
	}
	var nonce hexutil.Uint64
	if err := n.client.Call(ctx, &nonce, "eth_getTransactionCount", address, ref.arg); err != nil {
		return 0, err
	}
	if !n.mode.IsVerifiable() {
		return uint64(nonce), nil
	}

	account, err := n.proveAt(ctx, ref, address)
	if err != nil {
		return 0, err
	}
	if account.Nonce != uint64(nonce) {
		return 0, errors.VerificationFailed("nonce of %s: endpoint reported %d, proof has %d", address.Hex(), uint64(nonce), account.Nonce)
	}
	return uint64(nonce), nil
}

func (n *Node) GetCode(ctx context.Context, address common.Address, tag chain.BlockTag) ([]byte, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	var code hexutil.Bytes
	if err := n.client.Call(ctx, &code, "eth_getCode", address, ref.arg); err != nil {
		return nil, err
	}
	if !n.mode.IsVerifiable() {
		return code, nil
	}

	account, err := n.proveAt(ctx, ref, address)
	if err != nil {
		return nil, err
	}
	codeHash := account.CodeHash
	if codeHash == (common.Hash{}) {
		codeHash = types.EmptyCodeHash
	}
	if crypto.Keccak256Hash(code) != codeHash {
		return nil, errors.VerificationFailed("code of %s does not match the proven code hash", address.Hex())
	}
	return code, nil
}

// GetStorageAt returns the slot value as a quantity.
func (n *Node) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, tag chain.BlockTag) (*big.Int, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	var raw hexutil.Bytes
	if err := n.client.Call(ctx, &raw, "eth_getStorageAt", address, slot, ref.arg); err != nil {
		return nil, err
	}
	if len(raw) > common.HashLength {
		return nil, errors.UpstreamRPC("eth_getStorageAt", errStorageValueTooLong)
	}
	value := new(big.Int).SetBytes(raw)
	if !n.mode.IsVerifiable() {
		return value, nil
	}

	account, err := n.proveAt(ctx, ref, address, slot)
	if err != nil {
		return nil, err
	}
	proven, _ := account.Slot(slot)
	if bigOrZero(proven).Cmp(value) != 0 {
		return nil, errors.VerificationFailed("storage %s of %s: endpoint value does not match the proof", slot.Hex(), address.Hex())
	}
	return value, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
