package executiontest

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/status-im/verif-proxy/consensus"
)

const (
	// FirstBlock is the number of the first generated block. It sits after London and
	// Shanghai on mainnet so blocks carry base fees and withdrawals.
	FirstBlock     = 19_000_000
	firstTimestamp = 1_700_000_000
	blockGasLimit  = 30_000_000
)

var (
	BaseFee   = big.NewInt(7_000_000_000)
	GasTipCap = big.NewInt(2_000_000_000)
	GasFeeCap = big.NewInt(100_000_000_000)

	// LogContract emits one log per generated transaction.
	LogContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	LogTopic    = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	Recipient   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// Block is a generated block with everything needed to serve it.
type Block struct {
	Header       *types.Header
	Transactions types.Transactions
	Receipts     types.Receipts
	Withdrawals  types.Withdrawals
	Senders      []common.Address
}

func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

func (b *Block) Number() uint64 {
	return b.Header.Number.Uint64()
}

func (b *Block) Head() *consensus.Head {
	return consensus.HeadFromHeader(b.Header)
}

// Chain is a linear chain sharing one state.
type Chain struct {
	Config *params.ChainConfig
	Key    *ecdsa.PrivateKey
	Sender common.Address
	State  *State
	Blocks []*Block
}

// NewChain generates blocks on top of state. Block i carries i%3 transfers, each
// emitting one log from LogContract.
func NewChain(state *State, blocks int) *Chain {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	c := &Chain{
		Config: params.MainnetChainConfig,
		Key:    key,
		Sender: crypto.PubkeyToAddress(key.PublicKey),
		State:  state,
	}
	signer := types.LatestSignerForChainID(c.Config.ChainID)

	parent := common.Hash{}
	var nonce uint64
	for i := 0; i < blocks; i++ {
		number := uint64(FirstBlock + i)
		block := &Block{}

		var cumulative uint64
		var logIndex uint
		for j := 0; j < i%3; j++ {
			tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
				ChainID:   c.Config.ChainID,
				Nonce:     nonce,
				GasTipCap: GasTipCap,
				GasFeeCap: GasFeeCap,
				Gas:       params.TxGas,
				To:        &Recipient,
				Value:     big.NewInt(int64(1000 + i)),
			})
			nonce++
			cumulative += params.TxGas

			receipt := &types.Receipt{
				Type:              tx.Type(),
				Status:            types.ReceiptStatusSuccessful,
				CumulativeGasUsed: cumulative,
				TxHash:            tx.Hash(),
				GasUsed:           params.TxGas,
				EffectiveGasPrice: new(big.Int).Add(BaseFee, GasTipCap),
				BlockNumber:       new(big.Int).SetUint64(number),
				TransactionIndex:  uint(j),
				Logs: []*types.Log{{
					Address:     LogContract,
					Topics:      []common.Hash{LogTopic, common.BytesToHash(c.Sender.Bytes()), common.BigToHash(big.NewInt(int64(i)))},
					Data:        common.LeftPadBytes(big.NewInt(int64(1000+i)).Bytes(), 32),
					BlockNumber: number,
					TxHash:      tx.Hash(),
					TxIndex:     uint(j),
					Index:       logIndex,
				}},
			}
			logIndex++
			receipt.Bloom = types.CreateBloom(types.Receipts{receipt})

			block.Transactions = append(block.Transactions, tx)
			block.Receipts = append(block.Receipts, receipt)
			block.Senders = append(block.Senders, c.Sender)
		}
		block.Withdrawals = types.Withdrawals{{
			Index:     uint64(i),
			Validator: 42,
			Address:   Recipient,
			Amount:    uint64(1_000_000 + i),
		}}
		withdrawalsHash := types.DeriveSha(block.Withdrawals, trie.NewStackTrie(nil))

		block.Header = &types.Header{
			ParentHash:      parent,
			UncleHash:       types.EmptyUncleHash,
			Coinbase:        common.HexToAddress("0x00000000000000000000000000000000000000fe"),
			Root:            state.Root,
			TxHash:          types.DeriveSha(block.Transactions, trie.NewStackTrie(nil)),
			ReceiptHash:     types.DeriveSha(block.Receipts, trie.NewStackTrie(nil)),
			Bloom:           types.CreateBloom(block.Receipts),
			Difficulty:      new(big.Int),
			Number:          new(big.Int).SetUint64(number),
			GasLimit:        blockGasLimit,
			GasUsed:         cumulative,
			Time:            uint64(firstTimestamp + 12*i),
			Extra:           []byte("executiontest"),
			MixDigest:       crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes()),
			BaseFee:         new(big.Int).Set(BaseFee),
			WithdrawalsHash: &withdrawalsHash,
		}
		hash := block.Header.Hash()
		for _, receipt := range block.Receipts {
			receipt.BlockHash = hash
			for _, log := range receipt.Logs {
				log.BlockHash = hash
			}
		}
		c.Blocks = append(c.Blocks, block)
		parent = hash
	}
	return c
}

func (c *Chain) Latest() *Block {
	return c.Blocks[len(c.Blocks)-1]
}

// ByNumber returns nil for numbers outside the chain.
func (c *Chain) ByNumber(number uint64) *Block {
	if number < FirstBlock || number >= FirstBlock+uint64(len(c.Blocks)) {
		return nil
	}
	return c.Blocks[number-FirstBlock]
}

func (c *Chain) ByHash(hash common.Hash) *Block {
	for _, block := range c.Blocks {
		if block.Hash() == hash {
			return block
		}
	}
	return nil
}

// TransactionLocation finds the block and index of a transaction.
func (c *Chain) TransactionLocation(hash common.Hash) (*Block, int) {
	for _, block := range c.Blocks {
		for i, tx := range block.Transactions {
			if tx.Hash() == hash {
				return block, i
			}
		}
	}
	return nil, -1
}

// Logs returns all logs in blocks [from, to] in chain order.
func (c *Chain) Logs(from, to uint64) []*types.Log {
	var logs []*types.Log
	for n := from; n <= to; n++ {
		block := c.ByNumber(n)
		if block == nil {
			continue
		}
		for _, receipt := range block.Receipts {
			logs = append(logs, receipt.Logs...)
		}
	}
	return logs
}

// SignTransaction signs a transfer from the chain sender that is not part of any block.
func (c *Chain) SignTransaction(nonce uint64) *types.Transaction {
	return types.MustSignNewTx(c.Key, types.LatestSignerForChainID(c.Config.ChainID), &types.DynamicFeeTx{
		ChainID:   c.Config.ChainID,
		Nonce:     nonce,
		GasTipCap: GasTipCap,
		GasFeeCap: GasFeeCap,
		Gas:       params.TxGas,
		To:        &Recipient,
		Value:     big.NewInt(1),
	})
}

// TransactionJSON encodes tx the way an execution endpoint does, with block fields
// when block is non-nil.
func TransactionJSON(tx *types.Transaction, from common.Address, block *Block, index int) json.RawMessage {
	fields := objectFields(tx)
	fields["from"] = mustMarshal(from)
	if block != nil {
		price := new(big.Int).Add(block.Header.BaseFee, tx.GasTipCap())
		if price.Cmp(tx.GasFeeCap()) > 0 {
			price = tx.GasFeeCap()
		}
		fields["gasPrice"] = mustMarshal((*hexutil.Big)(price))
		fields["blockHash"] = mustMarshal(block.Hash())
		fields["blockNumber"] = mustMarshal(hexutil.Uint64(block.Number()))
		fields["transactionIndex"] = mustMarshal(hexutil.Uint64(index))
	} else {
		fields["gasPrice"] = mustMarshal((*hexutil.Big)(tx.GasFeeCap()))
		fields["blockHash"] = json.RawMessage("null")
		fields["blockNumber"] = json.RawMessage("null")
		fields["transactionIndex"] = json.RawMessage("null")
	}
	return mustMarshal(fields)
}

func (b *Block) TransactionJSON(index int) json.RawMessage {
	return TransactionJSON(b.Transactions[index], b.Senders[index], b, index)
}

// JSON encodes the block with full transaction bodies or hashes only.
func (b *Block) JSON(fullTx bool) json.RawMessage {
	fields := objectFields(b.Header)
	txs := make([]json.RawMessage, len(b.Transactions))
	for i, tx := range b.Transactions {
		if fullTx {
			txs[i] = b.TransactionJSON(i)
		} else {
			txs[i] = mustMarshal(tx.Hash())
		}
	}
	fields["transactions"] = mustMarshal(txs)
	fields["withdrawals"] = mustMarshal(b.Withdrawals)
	fields["uncles"] = json.RawMessage("[]")
	fields["size"] = mustMarshal(hexutil.Uint64(1024))
	fields["totalDifficulty"] = mustMarshal((*hexutil.Big)(big.NewInt(1)))
	return mustMarshal(fields)
}

// ReceiptJSON adds the sender and recipient fields endpoints serve next to the receipt.
func (b *Block) ReceiptJSON(index int) json.RawMessage {
	fields := objectFields(b.Receipts[index])
	fields["from"] = mustMarshal(b.Senders[index])
	fields["to"] = mustMarshal(b.Transactions[index].To())
	if b.Transactions[index].To() != nil {
		fields["contractAddress"] = json.RawMessage("null")
	}
	return mustMarshal(fields)
}

func (b *Block) ReceiptsJSON() []json.RawMessage {
	out := make([]json.RawMessage, len(b.Receipts))
	for i := range b.Receipts {
		out[i] = b.ReceiptJSON(i)
	}
	return out
}

func objectFields(v interface{}) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(mustMarshal(v), &fields); err != nil {
		panic(err)
	}
	return fields
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
