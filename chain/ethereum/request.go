package ethereum

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransactionRequest is an eth_call object. The original JSON is forwarded upstream unchanged.
type TransactionRequest struct {
	raw  json.RawMessage
	args callArgs
}

type callArgs struct {
	From                 *common.Address   `json:"from"`
	To                   *common.Address   `json:"to"`
	Gas                  *hexutil.Uint64   `json:"gas"`
	GasPrice             *hexutil.Big      `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big      `json:"value"`
	Nonce                *hexutil.Uint64   `json:"nonce"`
	Data                 *hexutil.Bytes    `json:"data"`
	Input                *hexutil.Bytes    `json:"input"`
	AccessList           *types.AccessList `json:"accessList"`
	MaxFeePerBlobGas     *hexutil.Big      `json:"maxFeePerBlobGas"`
	BlobVersionedHashes  []common.Hash     `json:"blobVersionedHashes"`
}

func decodeTransactionRequest(raw json.RawMessage) (*TransactionRequest, error) {
	var args callArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return nil, errors.New(`both "data" and "input" are set and not equal`)
	}
	if args.GasPrice != nil && (args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil) {
		return nil, errors.New("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	return &TransactionRequest{raw: raw, args: args}, nil
}

func (r *TransactionRequest) MarshalJSON() ([]byte, error) {
	return r.raw, nil
}

func (r *TransactionRequest) From() common.Address {
	if r.args.From == nil {
		return common.Address{}
	}
	return *r.args.From
}

func (r *TransactionRequest) To() *common.Address {
	return r.args.To
}

func (r *TransactionRequest) data() []byte {
	if r.args.Input != nil {
		return *r.args.Input
	}
	if r.args.Data != nil {
		return *r.args.Data
	}
	return nil
}

// Message mirrors the way an execution client prepares a call: gas defaults to the block
// gas limit, fees default to zero and account checks are skipped.
func (r *TransactionRequest) Message(header *types.Header) (*core.Message, error) {
	gas := header.GasLimit
	if r.args.Gas != nil {
		gas = uint64(*r.args.Gas)
	}

	var gasPrice, gasFeeCap, gasTipCap *big.Int
	switch {
	case header.BaseFee == nil || r.args.GasPrice != nil:
		gasPrice = new(big.Int)
		if r.args.GasPrice != nil {
			gasPrice = r.args.GasPrice.ToInt()
		}
		gasFeeCap, gasTipCap = gasPrice, gasPrice
	default:
		gasFeeCap, gasTipCap = new(big.Int), new(big.Int)
		if r.args.MaxFeePerGas != nil {
			gasFeeCap = r.args.MaxFeePerGas.ToInt()
		}
		if r.args.MaxPriorityFeePerGas != nil {
			gasTipCap = r.args.MaxPriorityFeePerGas.ToInt()
		}
		gasPrice = new(big.Int)
		if gasFeeCap.BitLen() > 0 || gasTipCap.BitLen() > 0 {
			gasPrice = new(big.Int).Add(gasTipCap, header.BaseFee)
			if gasPrice.Cmp(gasFeeCap) > 0 {
				gasPrice = gasFeeCap
			}
		}
	}

	value := new(big.Int)
	if r.args.Value != nil {
		value = r.args.Value.ToInt()
	}
	var nonce uint64
	if r.args.Nonce != nil {
		nonce = uint64(*r.args.Nonce)
	}
	var accessList types.AccessList
	if r.args.AccessList != nil {
		accessList = *r.args.AccessList
	}
	var blobFeeCap *big.Int
	if r.args.MaxFeePerBlobGas != nil {
		blobFeeCap = r.args.MaxFeePerBlobGas.ToInt()
	} else if r.args.BlobVersionedHashes != nil {
		blobFeeCap = new(big.Int)
	}

	return &core.Message{
		From:              r.From(),
		To:                r.args.To,
		Nonce:             nonce,
		Value:             value,
		GasLimit:          gas,
		GasPrice:          gasPrice,
		GasFeeCap:         gasFeeCap,
		GasTipCap:         gasTipCap,
		Data:              r.data(),
		AccessList:        accessList,
		BlobGasFeeCap:     blobFeeCap,
		BlobHashes:        r.args.BlobVersionedHashes,
		SkipAccountChecks: true,
	}, nil
}
