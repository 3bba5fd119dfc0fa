package execution

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution/executiontest"
)

var (
	richAddress  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenAddress = common.HexToAddress("0x1000000000000000000000000000000000000002")
	emptyAddress = common.HexToAddress("0x1000000000000000000000000000000000000003")
	balanceSlot  = common.HexToHash("0x05")
)

func testState() *executiontest.State {
	return executiontest.NewState(map[common.Address]*executiontest.Account{
		richAddress: {Nonce: 7, Balance: big.NewInt(1_000_000)},
		tokenAddress: {
			Nonce:   1,
			Code:    []byte{0x60, 0x00, 0x54, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0xf3},
			Storage: map[common.Hash]common.Hash{balanceSlot: common.HexToHash("0x2a")},
		},
	})
}

func newProofBackend(t *testing.T) (*executiontest.Backend, *ProofClient) {
	backend := executiontest.NewBackend(executiontest.NewChain(testState(), 3))
	proofs := NewProofClient(backend.Dial())
	t.Cleanup(proofs.Close)
	return backend, proofs
}

func TestAccountProofVerifies(t *testing.T) {
	backend, proofs := newProofBackend(t)
	root := backend.Chain.State.Root

	proof, err := proofs.GetProof(context.Background(), richAddress, nil, executiontest.FirstBlock)
	require.NoError(t, err)
	require.NoError(t, proof.Verify(root))
	require.Equal(t, uint64(7), proof.Nonce)
	require.Equal(t, int64(1_000_000), proof.Balance.Int64())

	proof, err = proofs.GetProof(context.Background(), tokenAddress, []common.Hash{balanceSlot, common.HexToHash("0x06")}, executiontest.FirstBlock)
	require.NoError(t, err)
	require.NoError(t, proof.Verify(root))
	value, ok := proof.Slot(balanceSlot)
	require.True(t, ok)
	require.Equal(t, int64(42), value.Int64())
	value, ok = proof.Slot(common.HexToHash("0x06"))
	require.True(t, ok)
	require.Zero(t, value.Sign())
}

func TestAbsentAccountProof(t *testing.T) {
	backend, proofs := newProofBackend(t)

	proof, err := proofs.GetProof(context.Background(), emptyAddress, nil, executiontest.FirstBlock)
	require.NoError(t, err)
	require.NoError(t, proof.Verify(backend.Chain.State.Root))

	proof.Balance = big.NewInt(1)
	err = proof.Verify(backend.Chain.State.Root)
	require.ErrorIs(t, err, errors.ErrVerificationFailed)
}

func TestTamperedAccountProofFails(t *testing.T) {
	backend, proofs := newProofBackend(t)
	root := backend.Chain.State.Root

	proof, err := proofs.GetProof(context.Background(), richAddress, nil, executiontest.FirstBlock)
	require.NoError(t, err)

	proof.Balance = big.NewInt(2_000_000)
	require.ErrorIs(t, proof.Verify(root), errors.ErrVerificationFailed)

	proof.Balance = big.NewInt(1_000_000)
	require.ErrorIs(t, proof.Verify(common.HexToHash("0xbad")), errors.ErrVerificationFailed)
}

func TestTamperedStorageProofFails(t *testing.T) {
	backend, proofs := newProofBackend(t)

	proof, err := proofs.GetProof(context.Background(), tokenAddress, []common.Hash{balanceSlot}, executiontest.FirstBlock)
	require.NoError(t, err)
	proof.StorageProof[0].Value = big.NewInt(43)
	require.ErrorIs(t, proof.Verify(backend.Chain.State.Root), errors.ErrVerificationFailed)
}

func TestGetProofChecksCoverage(t *testing.T) {
	backend, proofs := newProofBackend(t)
	backend.Tamper("eth_getProof", func(_ string, result json.RawMessage) json.RawMessage {
		var proof executiontest.ProofResult
		require.NoError(t, json.Unmarshal(result, &proof))
		proof.StorageProof = nil
		data, err := json.Marshal(proof)
		require.NoError(t, err)
		return data
	})

	_, err := proofs.GetProof(context.Background(), tokenAddress, []common.Hash{balanceSlot}, executiontest.FirstBlock)
	require.ErrorIs(t, err, errors.ErrVerificationFailed)
}

func TestGetProofForWrongAddressFails(t *testing.T) {
	backend, proofs := newProofBackend(t)
	backend.Tamper("eth_getProof", func(_ string, result json.RawMessage) json.RawMessage {
		var proof executiontest.ProofResult
		require.NoError(t, json.Unmarshal(result, &proof))
		proof.Address = emptyAddress
		proof.Balance = (*hexutil.Big)(big.NewInt(5))
		data, err := json.Marshal(proof)
		require.NoError(t, err)
		return data
	})

	_, err := proofs.GetProof(context.Background(), richAddress, nil, executiontest.FirstBlock)
	require.ErrorIs(t, err, errors.ErrVerificationFailed)
}
