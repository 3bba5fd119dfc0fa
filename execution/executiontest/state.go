// Package executiontest builds small consistent chains, state tries and proofs, and serves
// them from an in-process JSON-RPC upstream.
package executiontest

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
)

// Account is the test description of one account.
type Account struct {
	Nonce   uint64
	Balance *big.Int
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// State is an in-memory world state with its tries kept for proof generation.
type State struct {
	Accounts map[common.Address]*Account
	Root     common.Hash

	trie     *trie.Trie
	storage  map[common.Address]*trie.Trie
	roots    map[common.Address]common.Hash
	codeHash map[common.Address]common.Hash
}

func newTrie() *trie.Trie {
	return trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

// NewState commits accounts into fresh tries.
func NewState(accounts map[common.Address]*Account) *State {
	s := &State{
		Accounts: accounts,
		trie:     newTrie(),
		storage:  make(map[common.Address]*trie.Trie),
		roots:    make(map[common.Address]common.Hash),
		codeHash: make(map[common.Address]common.Hash),
	}
	for address, account := range accounts {
		storage := newTrie()
		for slot, value := range account.Storage {
			if value == (common.Hash{}) {
				continue
			}
			enc, err := rlp.EncodeToBytes(common.TrimLeftZeroes(value.Bytes()))
			if err != nil {
				panic(err)
			}
			storage.MustUpdate(crypto.Keccak256(slot.Bytes()), enc)
		}
		s.storage[address] = storage
		s.roots[address] = storage.Hash()

		codeHash := types.EmptyCodeHash
		if len(account.Code) > 0 {
			codeHash = crypto.Keccak256Hash(account.Code)
		}
		s.codeHash[address] = codeHash

		balance := account.Balance
		if balance == nil {
			balance = new(big.Int)
		}
		enc, err := rlp.EncodeToBytes(&types.StateAccount{
			Nonce:    account.Nonce,
			Balance:  uint256.MustFromBig(balance),
			Root:     s.roots[address],
			CodeHash: codeHash.Bytes(),
		})
		if err != nil {
			panic(err)
		}
		s.trie.MustUpdate(crypto.Keccak256(address.Bytes()), enc)
	}
	s.Root = s.trie.Hash()
	return s
}

// proofList collects proof nodes in the order the trie emits them.
type proofList []string

func (l *proofList) Put(key []byte, value []byte) error {
	*l = append(*l, hexutil.Encode(value))
	return nil
}

func (l *proofList) Delete(key []byte) error {
	panic("not supported")
}

// StorageResult mirrors one eth_getProof storage entry.
type StorageResult struct {
	Key   string       `json:"key"`
	Value *hexutil.Big `json:"value"`
	Proof []string     `json:"proof"`
}

// ProofResult mirrors an eth_getProof answer.
type ProofResult struct {
	Address      common.Address  `json:"address"`
	AccountProof []string        `json:"accountProof"`
	Balance      *hexutil.Big    `json:"balance"`
	CodeHash     common.Hash     `json:"codeHash"`
	Nonce        hexutil.Uint64  `json:"nonce"`
	StorageHash  common.Hash     `json:"storageHash"`
	StorageProof []StorageResult `json:"storageProof"`
}

// Proof proves address and slots. Unknown accounts get an absence proof.
func (s *State) Proof(address common.Address, slots []common.Hash) *ProofResult {
	var accountProof proofList
	if err := s.trie.Prove(crypto.Keccak256(address.Bytes()), &accountProof); err != nil {
		panic(err)
	}
	result := &ProofResult{
		Address:      address,
		AccountProof: accountProof,
		Balance:      (*hexutil.Big)(new(big.Int)),
		StorageHash:  types.EmptyRootHash,
		StorageProof: []StorageResult{},
	}

	account, ok := s.Accounts[address]
	if ok {
		if account.Balance != nil {
			result.Balance = (*hexutil.Big)(new(big.Int).Set(account.Balance))
		}
		result.Nonce = hexutil.Uint64(account.Nonce)
		result.CodeHash = s.codeHash[address]
		result.StorageHash = s.roots[address]
	}

	for _, slot := range slots {
		entry := StorageResult{Key: slot.Hex(), Value: (*hexutil.Big)(new(big.Int)), Proof: []string{}}
		if ok {
			var storageProof proofList
			if err := s.storage[address].Prove(crypto.Keccak256(slot.Bytes()), &storageProof); err != nil {
				panic(err)
			}
			entry.Proof = storageProof
			entry.Value = (*hexutil.Big)(account.Storage[slot].Big())
		}
		result.StorageProof = append(result.StorageProof, entry)
	}
	return result
}

// Balance of address, zero when unknown.
func (s *State) Balance(address common.Address) *big.Int {
	if account, ok := s.Accounts[address]; ok && account.Balance != nil {
		return new(big.Int).Set(account.Balance)
	}
	return new(big.Int)
}

func (s *State) Nonce(address common.Address) uint64 {
	if account, ok := s.Accounts[address]; ok {
		return account.Nonce
	}
	return 0
}

func (s *State) Code(address common.Address) []byte {
	if account, ok := s.Accounts[address]; ok {
		return account.Code
	}
	return nil
}

func (s *State) StorageAt(address common.Address, slot common.Hash) common.Hash {
	if account, ok := s.Accounts[address]; ok {
		return account.Storage[slot]
	}
	return common.Hash{}
}
