package chain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TagKind enumerates block references.
type TagKind int

const (
	Latest TagKind = iota
	Finalized
	Safe
	Pending
	Number
	Hash
)

// BlockTag identifies a block by a relative marker, a height or a hash.
// The zero value is Latest.
type BlockTag struct {
	Kind   TagKind
	Number uint64
	Hash   common.Hash
}

func LatestTag() BlockTag { return BlockTag{Kind: Latest} }
func FinalizedTag() BlockTag { return BlockTag{Kind: Finalized} }
func SafeTag() BlockTag { return BlockTag{Kind: Safe} }
func PendingTag() BlockTag { return BlockTag{Kind: Pending} }
func NumberTag(n uint64) BlockTag { return BlockTag{Kind: Number, Number: n} }
func HashTag(h common.Hash) BlockTag { return BlockTag{Kind: Hash, Hash: h} }

// IsRelative reports whether the tag must be resolved against the current head.
func (t BlockTag) IsRelative() bool {
	switch t.Kind {
	case Latest, Finalized, Safe, Pending:
		return true
	}
	return false
}

func (t BlockTag) String() string {
	switch t.Kind {
	case Latest:
		return "latest"
	case Finalized:
		return "finalized"
	case Safe:
		return "safe"
	case Pending:
		return "pending"
	case Number:
		return hexutil.EncodeUint64(t.Number)
	case Hash:
		return t.Hash.Hex()
	}
	return fmt.Sprintf("BlockTag(%d)", t.Kind)
}

// MarshalJSON encodes hash tags as EIP-1898 objects and everything else as a string.
func (t BlockTag) MarshalJSON() ([]byte, error) {
	if t.Kind == Hash {
		return json.Marshal(map[string]common.Hash{"blockHash": t.Hash})
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the relative markers, "earliest", a hex quantity, a 32 byte hash
// or an EIP-1898 object.
func (t *BlockTag) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			BlockNumber *hexutil.Uint64 `json:"blockNumber"`
			BlockHash   *common.Hash    `json:"blockHash"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		switch {
		case obj.BlockNumber != nil && obj.BlockHash != nil:
			return fmt.Errorf("cannot specify both blockHash and blockNumber")
		case obj.BlockHash != nil:
			*t = HashTag(*obj.BlockHash)
		case obj.BlockNumber != nil:
			*t = NumberTag(uint64(*obj.BlockNumber))
		default:
			return fmt.Errorf("block object needs blockHash or blockNumber")
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid block tag %s", data)
	}
	parsed, err := ParseBlockTag(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseBlockTag(s string) (BlockTag, error) {
	switch s {
	case "latest":
		return LatestTag(), nil
	case "finalized":
		return FinalizedTag(), nil
	case "safe":
		return SafeTag(), nil
	case "pending":
		return PendingTag(), nil
	case "earliest":
		return NumberTag(0), nil
	}
	if len(s) == 66 {
		var h common.Hash
		if err := h.UnmarshalText([]byte(s)); err != nil {
			return BlockTag{}, fmt.Errorf("invalid block hash %q: %w", s, err)
		}
		return HashTag(h), nil
	}
	n, err := hexutil.DecodeUint64(s)
	if err != nil {
		return BlockTag{}, fmt.Errorf("invalid block tag %q: %w", s, err)
	}
	return NumberTag(n), nil
}
