package ethereum

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/status-im/verif-proxy/chain"
)

var errHashOnlyBlock = errors.New("block body was fetched without full transactions")

// Block keeps the endpoint JSON verbatim next to its decoded form.
type Block struct {
	raw          json.RawMessage
	header       *types.Header
	hash         common.Hash
	txHashes     []common.Hash
	transactions []chain.Transaction
	withdrawals  *types.Withdrawals
	full         bool
}

func decodeBlock(raw json.RawMessage, signer types.Signer) (*Block, error) {
	header := new(types.Header)
	if err := header.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid block header: %w", err)
	}

	var body struct {
		Hash         common.Hash        `json:"hash"`
		Transactions []json.RawMessage  `json:"transactions"`
		Withdrawals  *types.Withdrawals `json:"withdrawals"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("invalid block body: %w", err)
	}

	block := &Block{
		raw:         raw,
		header:      header,
		hash:        body.Hash,
		txHashes:    make([]common.Hash, len(body.Transactions)),
		withdrawals: body.Withdrawals,
		full:        true,
	}

	hashes := 0
	for i, entry := range body.Transactions {
		if len(entry) > 0 && entry[0] == '"' {
			if err := json.Unmarshal(entry, &block.txHashes[i]); err != nil {
				return nil, fmt.Errorf("invalid transaction hash %d: %w", i, err)
			}
			hashes++
			continue
		}
		tx, err := decodeTransaction(entry, signer)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction %d: %w", i, err)
		}
		block.txHashes[i] = tx.Hash()
		block.transactions = append(block.transactions, tx)
	}
	if hashes > 0 {
		if hashes != len(body.Transactions) {
			return nil, errors.New("block mixes transaction hashes and bodies")
		}
		block.full = false
		block.transactions = nil
	}
	return block, nil
}

func (b *Block) MarshalJSON() ([]byte, error) {
	return b.raw, nil
}

func (b *Block) Header() *types.Header {
	return b.header
}

func (b *Block) DeclaredHash() common.Hash {
	return b.hash
}

func (b *Block) TransactionHashes() []common.Hash {
	return b.txHashes
}

func (b *Block) Transactions() []chain.Transaction {
	return b.transactions
}

func (b *Block) HasFullTransactions() bool {
	return b.full
}

func (b *Block) VerifyBody() error {
	if !b.full {
		return errHashOnlyBlock
	}

	txs := make(types.Transactions, len(b.transactions))
	for i, tx := range b.transactions {
		typed := tx.(*Transaction)
		if blockHash := typed.BlockHash(); blockHash != nil && *blockHash != b.hash {
			return fmt.Errorf("transaction %s claims block %s", typed.Hash().Hex(), blockHash.Hex())
		}
		if number := typed.BlockNumber(); number != nil && *number != b.header.Number.Uint64() {
			return fmt.Errorf("transaction %s claims block number %d", typed.Hash().Hex(), *number)
		}
		if index := typed.TransactionIndex(); index != nil && *index != uint64(i) {
			return fmt.Errorf("transaction %s claims index %d, found at %d", typed.Hash().Hex(), *index, i)
		}
		if err := typed.VerifyGasPrice(b.header.BaseFee); err != nil {
			return err
		}
		txs[i] = typed.tx
	}
	if root := types.DeriveSha(txs, trie.NewStackTrie(nil)); root != b.header.TxHash {
		return fmt.Errorf("transactions root mismatch: derived %s, header %s", root.Hex(), b.header.TxHash.Hex())
	}

	if b.header.WithdrawalsHash != nil {
		if b.withdrawals == nil {
			return errors.New("block lacks withdrawals committed by its header")
		}
		if root := types.DeriveSha(*b.withdrawals, trie.NewStackTrie(nil)); root != *b.header.WithdrawalsHash {
			return fmt.Errorf("withdrawals root mismatch: derived %s, header %s", root.Hex(), b.header.WithdrawalsHash.Hex())
		}
	}
	return nil
}

func (b *Block) WithTransactionHashes() (chain.Block, error) {
	if !b.full {
		return b, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b.raw, &fields); err != nil {
		return nil, err
	}
	hashes, err := json.Marshal(b.txHashes)
	if err != nil {
		return nil, err
	}
	fields["transactions"] = hashes
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return &Block{
		raw:         raw,
		header:      b.header,
		hash:        b.hash,
		txHashes:    b.txHashes,
		withdrawals: b.withdrawals,
		full:        false,
	}, nil
}
