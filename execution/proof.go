package execution

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/metrics"
)

// StorageProof is a proven storage slot.
type StorageProof struct {
	Key   common.Hash
	Value *big.Int
	Proof []string
}

// AccountProof is an eth_getProof answer.
type AccountProof struct {
	Address      common.Address
	Balance      *big.Int
	Nonce        uint64
	CodeHash     common.Hash
	StorageHash  common.Hash
	AccountProof []string
	StorageProof []StorageProof
}

// Slot returns the proven value of key, if it was requested.
func (p *AccountProof) Slot(key common.Hash) (*big.Int, bool) {
	for _, sp := range p.StorageProof {
		if sp.Key == key {
			return sp.Value, true
		}
	}
	return nil, false
}

// stateAccount is the consensus encoding of an account in the state trie.
type stateAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// Verify checks the account proof against stateRoot and every storage proof
// against the proven storage root.
func (p *AccountProof) Verify(stateRoot common.Hash) error {
	value, err := verifyMerkleProof(stateRoot, crypto.Keccak256(p.Address.Bytes()), p.AccountProof)
	if err != nil {
		return errors.VerificationFailedWithCause(err, "invalid account proof for %s", p.Address.Hex())
	}

	if value == nil {
		if !p.isEmpty() {
			return errors.VerificationFailed("account %s is absent from state but the proof reports data", p.Address.Hex())
		}
	} else {
		var account stateAccount
		if err := rlp.DecodeBytes(value, &account); err != nil {
			return errors.VerificationFailedWithCause(err, "undecodable account %s", p.Address.Hex())
		}
		if account.Nonce != p.Nonce ||
			bigOrZero(account.Balance).Cmp(bigOrZero(p.Balance)) != 0 ||
			account.Root != p.StorageHash ||
			!bytes.Equal(account.CodeHash, p.CodeHash.Bytes()) {
			return errors.VerificationFailed("account %s does not match the state root", p.Address.Hex())
		}
	}

	for _, sp := range p.StorageProof {
		if err := verifyStorage(p.storageRoot(), sp); err != nil {
			return err
		}
	}
	return nil
}

func (p *AccountProof) storageRoot() common.Hash {
	if p.StorageHash == (common.Hash{}) {
		return types.EmptyRootHash
	}
	return p.StorageHash
}

func (p *AccountProof) isEmpty() bool {
	return p.Nonce == 0 &&
		bigOrZero(p.Balance).Sign() == 0 &&
		(p.CodeHash == common.Hash{} || p.CodeHash == types.EmptyCodeHash) &&
		(p.StorageHash == common.Hash{} || p.StorageHash == types.EmptyRootHash)
}

func verifyStorage(root common.Hash, sp StorageProof) error {
	// an empty storage trie has no nodes to prove, every slot is zero
	if root == types.EmptyRootHash && len(sp.Proof) == 0 {
		if bigOrZero(sp.Value).Sign() != 0 {
			return errors.VerificationFailed("storage slot %s is not empty, but the storage trie is", sp.Key.Hex())
		}
		return nil
	}
	value, err := verifyMerkleProof(root, crypto.Keccak256(sp.Key.Bytes()), sp.Proof)
	if err != nil {
		return errors.VerificationFailedWithCause(err, "invalid storage proof for slot %s", sp.Key.Hex())
	}
	proven := new(big.Int)
	if value != nil {
		var content []byte
		if err := rlp.DecodeBytes(value, &content); err != nil {
			return errors.VerificationFailedWithCause(err, "undecodable storage value for slot %s", sp.Key.Hex())
		}
		proven.SetBytes(content)
	}
	if proven.Cmp(bigOrZero(sp.Value)) != 0 {
		return errors.VerificationFailed("storage slot %s does not match the storage root", sp.Key.Hex())
	}
	return nil
}

// verifyMerkleProof returns nil value for a valid proof of absence.
func verifyMerkleProof(root common.Hash, key []byte, proof []string) ([]byte, error) {
	db := memorydb.New()
	for _, encoded := range proof {
		node, err := hexutil.Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("bad proof node: %w", err)
		}
		if err := db.Put(crypto.Keccak256(node), node); err != nil {
			return nil, err
		}
	}
	return trie.VerifyProof(root, key, db)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// ProofClient fetches eth_getProof answers from the proof endpoint.
type ProofClient struct {
	client *gethclient.Client
	rpc    *gethrpc.Client
}

func DialProof(ctx context.Context, mode *Mode) (*ProofClient, error) {
	endpoint := mode.ProofEndpoint()
	if endpoint == nil {
		return nil, errors.Configuration("no execution verifiable API provided")
	}
	rpcClient, err := gethrpc.DialContext(ctx, endpoint.String())
	if err != nil {
		return nil, errors.UpstreamRPC("dial", err)
	}
	return NewProofClient(rpcClient), nil
}

func NewProofClient(rpcClient *gethrpc.Client) *ProofClient {
	return &ProofClient{client: gethclient.New(rpcClient), rpc: rpcClient}
}

// GetProof fetches the proof of address and slots at block number.
func (c *ProofClient) GetProof(ctx context.Context, address common.Address, slots []common.Hash, number uint64) (*AccountProof, error) {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = slot.Hex()
	}

	start := time.Now()
	result, err := c.client.GetProof(ctx, address, keys, new(big.Int).SetUint64(number))
	metrics.ObserveUpstream("eth_getProof", err, time.Since(start))
	if err != nil {
		return nil, errors.UpstreamRPC("eth_getProof", err)
	}

	proof := &AccountProof{
		Address:      result.Address,
		Balance:      result.Balance,
		Nonce:        result.Nonce,
		CodeHash:     result.CodeHash,
		StorageHash:  result.StorageHash,
		AccountProof: result.AccountProof,
		StorageProof: make([]StorageProof, len(result.StorageProof)),
	}
	for i, sp := range result.StorageProof {
		proof.StorageProof[i] = StorageProof{
			Key:   common.HexToHash(sp.Key),
			Value: sp.Value,
			Proof: sp.Proof,
		}
	}
	if proof.Address != address {
		return nil, errors.VerificationFailed("proof is for %s, requested %s", proof.Address.Hex(), address.Hex())
	}
	for _, slot := range slots {
		if _, ok := proof.Slot(slot); !ok {
			return nil, errors.VerificationFailed("proof for %s lacks slot %s", address.Hex(), slot.Hex())
		}
	}
	return proof, nil
}

func (c *ProofClient) Close() {
	c.rpc.Close()
}
