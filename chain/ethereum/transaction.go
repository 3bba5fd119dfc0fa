package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction keeps the endpoint JSON verbatim next to the decoded transaction.
type Transaction struct {
	raw         json.RawMessage
	tx          *types.Transaction
	from        common.Address
	gasPrice    *big.Int
	blockHash   *common.Hash
	blockNumber *uint64
	index       *uint64
}

// decodeTransaction checks the declared hash and sender against the signed content.
func decodeTransaction(raw json.RawMessage, signer types.Signer) (*Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalJSON(raw); err != nil {
		return nil, err
	}

	var meta struct {
		Hash             common.Hash     `json:"hash"`
		From             *common.Address `json:"from"`
		GasPrice         *hexutil.Big    `json:"gasPrice"`
		BlockHash        *common.Hash    `json:"blockHash"`
		BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
		TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Hash != tx.Hash() {
		return nil, fmt.Errorf("transaction hash mismatch: declared %s, computed %s", meta.Hash.Hex(), tx.Hash().Hex())
	}

	sender, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("transaction %s has an invalid signature: %w", tx.Hash().Hex(), err)
	}
	if meta.From != nil && *meta.From != sender {
		return nil, fmt.Errorf("transaction %s declares sender %s, signature recovers %s", tx.Hash().Hex(), meta.From.Hex(), sender.Hex())
	}

	out := &Transaction{raw: raw, tx: tx, from: sender, blockHash: meta.BlockHash}
	if meta.GasPrice != nil {
		out.gasPrice = (*big.Int)(meta.GasPrice)
	}
	if meta.BlockNumber != nil {
		n := uint64(*meta.BlockNumber)
		out.blockNumber = &n
	}
	if meta.TransactionIndex != nil {
		i := uint64(*meta.TransactionIndex)
		out.index = &i
	}
	return out, nil
}

func (t *Transaction) MarshalJSON() ([]byte, error) {
	return t.raw, nil
}

func (t *Transaction) Hash() common.Hash {
	return t.tx.Hash()
}

// From is the sender recovered from the signature.
func (t *Transaction) From() common.Address {
	return t.from
}

func (t *Transaction) BlockHash() *common.Hash {
	return t.blockHash
}

func (t *Transaction) BlockNumber() *uint64 {
	return t.blockNumber
}

func (t *Transaction) TransactionIndex() *uint64 {
	return t.index
}

// EffectiveTip never returns a negative value.
func (t *Transaction) EffectiveTip(baseFee *big.Int) *big.Int {
	tip, err := t.tx.EffectiveGasTip(baseFee)
	if err != nil || tip.Sign() < 0 {
		return new(big.Int)
	}
	return tip
}

// VerifyGasPrice checks the declared gas price of a mined transaction against the
// price it paid under baseFee. Absent prices pass.
func (t *Transaction) VerifyGasPrice(baseFee *big.Int) error {
	if t.gasPrice == nil {
		return nil
	}
	if paid := effectiveGasPrice(t.tx, baseFee); paid.Cmp(t.gasPrice) != 0 {
		return fmt.Errorf("transaction %s declares gas price %s, paid %s", t.Hash().Hex(), t.gasPrice, paid)
	}
	return nil
}

// effectiveGasPrice is min(feeCap, baseFee+tipCap), the legacy price before London.
func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return new(big.Int).Set(tx.GasPrice())
	}
	price := new(big.Int).Add(baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}
