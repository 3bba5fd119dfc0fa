package consensus

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestSyncStatusMarshalJSON(t *testing.T) {
	data, err := json.Marshal(SyncStatus{})
	require.NoError(t, err)
	require.Equal(t, "false", string(data))

	data, err = json.Marshal(&SyncStatus{Syncing: true, StartingBlock: 1, CurrentBlock: 16, HighestBlock: 255})
	require.NoError(t, err)
	require.JSONEq(t, `{"startingBlock":"0x1","currentBlock":"0x10","highestBlock":"0xff"}`, string(data))
}

func TestHeadFromHeader(t *testing.T) {
	header := &types.Header{
		ParentHash: common.HexToHash("0x01"),
		Root:       common.HexToHash("0x02"),
		Number:     big.NewInt(42),
		GasLimit:   30_000_000,
		Time:       1700000000,
		BaseFee:    big.NewInt(7),
		Coinbase:   common.HexToAddress("0x03"),
		Difficulty: new(big.Int),
	}

	head := HeadFromHeader(header)
	require.Equal(t, uint64(42), head.Number)
	require.Equal(t, header.Hash(), head.Hash)
	require.Equal(t, header.Root, head.StateRoot)
	require.Equal(t, header.Coinbase, head.FeeRecipient)
	require.Equal(t, int64(7), head.BaseFee.Int64())

	header.BaseFee.SetInt64(8)
	require.Equal(t, int64(7), head.BaseFee.Int64())
}
