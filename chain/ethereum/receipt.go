package ethereum

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt keeps the endpoint JSON verbatim next to the decoded receipt.
type Receipt struct {
	raw     json.RawMessage
	receipt *types.Receipt
	// from and to are not part of the consensus encoding
	from *common.Address
	to   json.RawMessage
}

func decodeReceipt(raw json.RawMessage) (*Receipt, error) {
	receipt := new(types.Receipt)
	if err := receipt.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	var meta struct {
		From *common.Address `json:"from"`
		To   json.RawMessage `json:"to"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &Receipt{raw: raw, receipt: receipt, from: meta.From, to: meta.To}, nil
}

func (r *Receipt) MarshalJSON() ([]byte, error) {
	return r.raw, nil
}

func (r *Receipt) TransactionHash() common.Hash {
	return r.receipt.TxHash
}

func (r *Receipt) BlockHash() common.Hash {
	return r.receipt.BlockHash
}

func (r *Receipt) BlockNumber() uint64 {
	if r.receipt.BlockNumber == nil {
		return 0
	}
	return r.receipt.BlockNumber.Uint64()
}

func (r *Receipt) TransactionIndex() uint {
	return r.receipt.TransactionIndex
}

func (r *Receipt) Logs() []*types.Log {
	return r.receipt.Logs
}

// verify checks the fields the receipts root does not commit to against the verified
// transaction at index. previousGas is the cumulative gas of the receipt before it and
// firstLog the block-wide index of its first log.
func (r *Receipt) verify(header *types.Header, hash common.Hash, tx *Transaction, index int, previousGas uint64, firstLog uint) error {
	rc := r.receipt
	switch {
	case rc.TxHash != tx.Hash():
		return fmt.Errorf("receipt %d is for transaction %s, block has %s", index, rc.TxHash.Hex(), tx.Hash().Hex())
	case rc.BlockHash != hash:
		return fmt.Errorf("receipt %d claims block %s", index, rc.BlockHash.Hex())
	case rc.BlockNumber == nil || rc.BlockNumber.Cmp(header.Number) != 0:
		return fmt.Errorf("receipt %d claims block number %v", index, rc.BlockNumber)
	case rc.TransactionIndex != uint(index):
		return fmt.Errorf("receipt %d claims index %d", index, rc.TransactionIndex)
	}

	if r.from != nil && *r.from != tx.From() {
		return fmt.Errorf("receipt %d declares sender %s, transaction is from %s", index, r.from.Hex(), tx.From().Hex())
	}
	if err := r.verifyRecipient(tx, index); err != nil {
		return err
	}

	if rc.CumulativeGasUsed < previousGas || rc.GasUsed != rc.CumulativeGasUsed-previousGas {
		return fmt.Errorf("receipt %d declares gas used %d, cumulative gas grew by %d", index, rc.GasUsed, rc.CumulativeGasUsed-previousGas)
	}
	if rc.EffectiveGasPrice != nil {
		if paid := effectiveGasPrice(tx.tx, header.BaseFee); paid.Cmp(rc.EffectiveGasPrice) != 0 {
			return fmt.Errorf("receipt %d declares effective gas price %s, transaction paid %s", index, rc.EffectiveGasPrice, paid)
		}
	}
	if rc.BlobGasUsed != tx.tx.BlobGas() {
		return fmt.Errorf("receipt %d declares blob gas %d, transaction carries %d", index, rc.BlobGasUsed, tx.tx.BlobGas())
	}
	if rc.BlobGasPrice != nil {
		if header.ExcessBlobGas == nil {
			return fmt.Errorf("receipt %d declares a blob gas price before blobs", index)
		}
		if fee := eip4844.CalcBlobFee(*header.ExcessBlobGas); fee.Cmp(rc.BlobGasPrice) != 0 {
			return fmt.Errorf("receipt %d declares blob gas price %s, header implies %s", index, rc.BlobGasPrice, fee)
		}
	}

	for i, log := range rc.Logs {
		if log.BlockHash != hash || log.BlockNumber != header.Number.Uint64() ||
			log.TxHash != rc.TxHash || log.TxIndex != uint(index) ||
			log.Index != firstLog+uint(i) || log.Removed {
			return fmt.Errorf("log %d of receipt %d is out of place", i, index)
		}
	}
	return nil
}

func (r *Receipt) verifyRecipient(tx *Transaction, index int) error {
	rc := r.receipt
	recipient := tx.tx.To()
	if recipient == nil {
		created := crypto.CreateAddress(tx.From(), tx.tx.Nonce())
		if rc.ContractAddress != created {
			return fmt.Errorf("receipt %d declares contract %s, deployment creates %s", index, rc.ContractAddress.Hex(), created.Hex())
		}
		if len(r.to) > 0 && !bytes.Equal(r.to, []byte("null")) {
			return fmt.Errorf("receipt %d declares a recipient for a contract deployment", index)
		}
		return nil
	}

	if rc.ContractAddress != (common.Address{}) {
		return fmt.Errorf("receipt %d declares contract %s for a call", index, rc.ContractAddress.Hex())
	}
	if len(r.to) == 0 {
		return nil
	}
	var to *common.Address
	if err := json.Unmarshal(r.to, &to); err != nil {
		return fmt.Errorf("receipt %d has an invalid recipient: %w", index, err)
	}
	if to == nil || *to != *recipient {
		return fmt.Errorf("receipt %d declares recipient %v, transaction is to %s", index, to, recipient.Hex())
	}
	return nil
}
