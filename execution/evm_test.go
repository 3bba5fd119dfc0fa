package execution

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution/executiontest"
)

var (
	callerAddress = common.HexToAddress("0x2000000000000000000000000000000000000001")
	readerAddress = common.HexToAddress("0x2000000000000000000000000000000000000002")
	vaultAddress  = common.HexToAddress("0x2000000000000000000000000000000000000003")
)

// readerCode returns storage slot 0 followed by the balance of vaultAddress.
func readerCode() []byte {
	code := []byte{
		0x60, 0x00, 0x54, // SLOAD(0)
		0x60, 0x00, 0x52, // MSTORE(0)
		0x73, // PUSH20 vault
	}
	code = append(code, vaultAddress.Bytes()...)
	code = append(code,
		0x31,             // BALANCE
		0x60, 0x20, 0x52, // MSTORE(32)
		0x60, 0x40, 0x60, 0x00, 0xf3, // RETURN(0, 64)
	)
	return code
}

type evmFixture struct {
	backend *executiontest.Backend
	evm     *EVM
	header  *types.Header
}

func newEVMFixture(t *testing.T) *evmFixture {
	state := executiontest.NewState(map[common.Address]*executiontest.Account{
		readerAddress: {
			Code:    readerCode(),
			Storage: map[common.Hash]common.Hash{{}: common.HexToHash("0x2a")},
		},
		vaultAddress:  {Balance: big.NewInt(12345)},
		callerAddress: {Nonce: 3, Balance: big.NewInt(1)},
	})
	backend := executiontest.NewBackend(executiontest.NewChain(state, 2))
	proofs := NewProofClient(backend.Dial())
	client := NewClient(backend.Dial(), "inproc://upstream")
	t.Cleanup(proofs.Close)
	t.Cleanup(client.Close)

	return &evmFixture{
		backend: backend,
		evm:     NewEVM(backend.Chain.Config, proofs, client),
		header:  backend.Chain.Latest().Header,
	}
}

func readerMessage() *core.Message {
	return &core.Message{
		From:              callerAddress,
		To:                &readerAddress,
		Value:             new(big.Int),
		GasLimit:          1_000_000,
		GasPrice:          new(big.Int),
		GasFeeCap:         new(big.Int),
		GasTipCap:         new(big.Int),
		SkipAccountChecks: true,
	}
}

func TestEVMCallProvesTouchedState(t *testing.T) {
	f := newEVMFixture(t)

	result, err := f.evm.Call(context.Background(), f.header, readerMessage(), nil)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	require.Len(t, result.ReturnData, 64)
	require.Equal(t, int64(42), new(big.Int).SetBytes(result.ReturnData[:32]).Int64())
	require.Equal(t, int64(12345), new(big.Int).SetBytes(result.ReturnData[32:]).Int64())

	// the first run discovers the slot and the vault, the second one proves them
	require.Equal(t, 4, f.backend.CallCount("eth_getProof"))
}

func TestEVMCallUsesAccessListHint(t *testing.T) {
	f := newEVMFixture(t)
	hint := types.AccessList{
		{Address: readerAddress, StorageKeys: []common.Hash{{}}},
		{Address: vaultAddress},
	}

	result, err := f.evm.Call(context.Background(), f.header, readerMessage(), hint)
	require.NoError(t, err)
	require.Equal(t, int64(12345), new(big.Int).SetBytes(result.ReturnData[32:]).Int64())
	require.Equal(t, 3, f.backend.CallCount("eth_getProof"))
}

func TestEVMCallRejectsForgedCode(t *testing.T) {
	f := newEVMFixture(t)
	f.backend.ReplaceResult("eth_getCode", hexutil.Bytes{0x60, 0x01, 0x60, 0x00, 0xf3})

	_, err := f.evm.Call(context.Background(), f.header, readerMessage(), nil)
	require.ErrorIs(t, err, errors.ErrVerificationFailed)
}

func TestEVMCallRejectsForgedProof(t *testing.T) {
	f := newEVMFixture(t)
	f.backend.Tamper("eth_getProof", func(_ string, result json.RawMessage) json.RawMessage {
		var proof executiontest.ProofResult
		require.NoError(t, json.Unmarshal(result, &proof))
		if proof.Address != vaultAddress {
			return nil
		}
		proof.Balance = (*hexutil.Big)(big.NewInt(99999))
		data, err := json.Marshal(proof)
		require.NoError(t, err)
		return data
	})

	_, err := f.evm.Call(context.Background(), f.header, readerMessage(), nil)
	require.ErrorIs(t, err, errors.ErrVerificationFailed)
}

func TestNewBlockContext(t *testing.T) {
	header := &types.Header{
		Number:     big.NewInt(10),
		Time:       100,
		GasLimit:   1000,
		Difficulty: new(big.Int),
		MixDigest:  common.HexToHash("0x01"),
		BaseFee:    big.NewInt(3),
	}
	ctx := NewBlockContext(header)
	require.NotNil(t, ctx.Random)
	require.Equal(t, header.MixDigest, *ctx.Random)
	require.Nil(t, ctx.BlobBaseFee)

	excess := uint64(0)
	header.ExcessBlobGas = &excess
	header.Difficulty = big.NewInt(2)
	ctx = NewBlockContext(header)
	require.Nil(t, ctx.Random)
	require.Equal(t, int64(1), ctx.BlobBaseFee.Int64())
}
