package chain

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBlockTagUnmarshalJSON(t *testing.T) {
	hash := common.HexToHash("0x5d15649e25d8f3e2c0374946078539d200710afc977cdfc6a977bd23f20fa8e8")

	testCases := []struct {
		input    string
		expected BlockTag
	}{
		{`"latest"`, LatestTag()},
		{`"finalized"`, FinalizedTag()},
		{`"safe"`, SafeTag()},
		{`"pending"`, PendingTag()},
		{`"earliest"`, NumberTag(0)},
		{`"0x0"`, NumberTag(0)},
		{`"0x10d4f"`, NumberTag(68943)},
		{`"` + hash.Hex() + `"`, HashTag(hash)},
		{`{"blockHash":"` + hash.Hex() + `"}`, HashTag(hash)},
		{`{"blockHash":"` + hash.Hex() + `","requireCanonical":true}`, HashTag(hash)},
		{`{"blockNumber":"0x20"}`, NumberTag(32)},
	}

	for _, tc := range testCases {
		var tag BlockTag
		require.NoError(t, json.Unmarshal([]byte(tc.input), &tag), tc.input)
		require.Equal(t, tc.expected, tag, tc.input)
	}
}

func TestBlockTagUnmarshalJSONErrors(t *testing.T) {
	for _, input := range []string{
		`"newest"`,
		`"0x"`,
		`"12"`,
		`12`,
		`{}`,
		`{"blockNumber":"0x1","blockHash":"0x5d15649e25d8f3e2c0374946078539d200710afc977cdfc6a977bd23f20fa8e8"}`,
	} {
		var tag BlockTag
		require.Error(t, json.Unmarshal([]byte(input), &tag), input)
	}
}

func TestBlockTagMarshalJSON(t *testing.T) {
	hash := common.HexToHash("0x01")

	data, err := json.Marshal(NumberTag(255))
	require.NoError(t, err)
	require.Equal(t, `"0xff"`, string(data))

	data, err = json.Marshal(FinalizedTag())
	require.NoError(t, err)
	require.Equal(t, `"finalized"`, string(data))

	data, err = json.Marshal(HashTag(hash))
	require.NoError(t, err)
	require.Equal(t, `{"blockHash":"`+hash.Hex()+`"}`, string(data))

	var zero BlockTag
	require.Equal(t, LatestTag(), zero)
}

func TestBlockTagIsRelative(t *testing.T) {
	require.True(t, LatestTag().IsRelative())
	require.True(t, SafeTag().IsRelative())
	require.True(t, FinalizedTag().IsRelative())
	require.True(t, PendingTag().IsRelative())
	require.False(t, NumberTag(1).IsRelative())
	require.False(t, HashTag(common.Hash{}).IsRelative())
}
