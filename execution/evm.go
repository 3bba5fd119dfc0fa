package execution

import (
	"context"
	"math"
	"math/big"
	"sort"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/ethereum/go-ethereum/params"

	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/logutils"
)

const (
	// DefaultMaxProofRounds bounds how often a call is re-executed to cover newly touched state.
	DefaultMaxProofRounds = 4
	maxParallelProofs     = 8
)

// ProofFetcher is implemented by *ProofClient.
type ProofFetcher interface {
	GetProof(ctx context.Context, address common.Address, slots []common.Hash, number uint64) (*AccountProof, error)
}

// Caller is implemented by *Client.
type Caller interface {
	Call(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// ProvenAccount is an account verified against a state root, with its code when requested.
type ProvenAccount struct {
	*AccountProof
	Code []byte
}

// BlockArg is the EIP-1898 block reference of header.
func BlockArg(header *types.Header) map[string]interface{} {
	return map[string]interface{}{"blockHash": header.Hash()}
}

// ProveAccount fetches and verifies the proof of address at header. With withCode set the
// code is fetched from the execution endpoint and checked against the proven code hash.
func ProveAccount(ctx context.Context, proofs ProofFetcher, client Caller, header *types.Header, address common.Address, slots []common.Hash, withCode bool) (*ProvenAccount, error) {
	proof, err := proofs.GetProof(ctx, address, slots, header.Number.Uint64())
	if err != nil {
		return nil, err
	}
	if err := proof.Verify(header.Root); err != nil {
		return nil, err
	}

	account := &ProvenAccount{AccountProof: proof}
	if !withCode || proof.CodeHash == (common.Hash{}) || proof.CodeHash == types.EmptyCodeHash {
		return account, nil
	}

	var code hexutil.Bytes
	if err := client.Call(ctx, &code, "eth_getCode", address, BlockArg(header)); err != nil {
		return nil, err
	}
	if crypto.Keccak256Hash(code) != proof.CodeHash {
		return nil, errors.VerificationFailed("code of %s does not match the proven code hash", address.Hex())
	}
	account.Code = code
	return account, nil
}

// EVM executes calls locally on top of proof verified state.
type EVM struct {
	chainConfig *params.ChainConfig
	proofs      ProofFetcher
	client      Caller
	maxRounds   int
	log         *zap.Logger
}

func NewEVM(chainConfig *params.ChainConfig, proofs ProofFetcher, client Caller) *EVM {
	return &EVM{
		chainConfig: chainConfig,
		proofs:      proofs,
		client:      client,
		maxRounds:   DefaultMaxProofRounds,
		log:         logutils.ZapLogger().Named("evm"),
	}
}

type accessSet map[common.Address]map[common.Hash]struct{}

func (s accessSet) add(address common.Address, slots ...common.Hash) {
	if _, ok := s[address]; !ok {
		s[address] = make(map[common.Hash]struct{})
	}
	for _, slot := range slots {
		s[address][slot] = struct{}{}
	}
}

func (s accessSet) addList(list types.AccessList) {
	for _, tuple := range list {
		s.add(tuple.Address, tuple.StorageKeys...)
	}
}

func (s accessSet) slots(address common.Address) []common.Hash {
	slots := make([]common.Hash, 0, len(s[address]))
	for slot := range s[address] {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Cmp(slots[j]) < 0 })
	return slots
}

// missing returns addresses whose account or some slot is not covered by proven.
func (s accessSet) missing(proven map[common.Address]*ProvenAccount) []common.Address {
	var out []common.Address
	for address, slots := range s {
		account, ok := proven[address]
		if !ok {
			out = append(out, address)
			continue
		}
		for slot := range slots {
			if _, ok := account.Slot(slot); !ok {
				out = append(out, address)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Call runs msg at header. hint seeds the set of accounts to prove, usually the result of
// eth_createAccessList. Any state touched during execution that was not proven is fetched
// and the call is replayed.
func (e *EVM) Call(ctx context.Context, header *types.Header, msg *core.Message, hint types.AccessList) (*core.ExecutionResult, error) {
	want := accessSet{}
	want.addList(hint)
	want.add(msg.From)
	if msg.To != nil {
		want.add(*msg.To)
	}

	proven := make(map[common.Address]*ProvenAccount)
	for round := 0; round < e.maxRounds; round++ {
		if err := e.prove(ctx, header, want, proven); err != nil {
			return nil, err
		}

		result, touched, err := e.execute(header, msg, proven)
		if err != nil {
			return nil, err
		}
		want.addList(touched)
		if len(want.missing(proven)) == 0 {
			return result, nil
		}
		e.log.Debug("call touched unproven state, replaying", zap.Int("round", round), zap.Int("accounts", len(touched)))
	}
	return nil, errors.VerificationFailed("call touched state that could not be proven in %d rounds", e.maxRounds)
}

func (e *EVM) prove(ctx context.Context, header *types.Header, want accessSet, proven map[common.Address]*ProvenAccount) error {
	missing := want.missing(proven)
	if len(missing) == 0 {
		return nil
	}

	results := make([]*ProvenAccount, len(missing))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelProofs)
	for i, address := range missing {
		i, address := i, address
		group.Go(func() error {
			account, err := ProveAccount(groupCtx, e.proofs, e.client, header, address, want.slots(address), true)
			if err != nil {
				return err
			}
			results[i] = account
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	for _, account := range results {
		proven[account.Address] = account
	}
	return nil
}

func (e *EVM) execute(header *types.Header, msg *core.Message, proven map[common.Address]*ProvenAccount) (*core.ExecutionResult, types.AccessList, error) {
	statedb, err := state.New(types.EmptyRootHash, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, nil, err
	}
	for address, account := range proven {
		statedb.SetNonce(address, account.Nonce)
		statedb.SetBalance(address, uint256.MustFromBig(bigOrZero(account.Balance)))
		if len(account.Code) > 0 {
			statedb.SetCode(address, account.Code)
		}
		for _, sp := range account.StorageProof {
			statedb.SetState(address, sp.Key, common.BigToHash(bigOrZero(sp.Value)))
		}
	}

	blockCtx := NewBlockContext(header)
	rules := e.chainConfig.Rules(header.Number, blockCtx.Random != nil, header.Time)
	to := msg.From
	if msg.To != nil {
		to = *msg.To
	}
	tracer := logger.NewAccessListTracer(nil, msg.From, to, vm.ActivePrecompiles(rules))

	evm := vm.NewEVM(blockCtx, core.NewEVMTxContext(msg), statedb, e.chainConfig, vm.Config{NoBaseFee: true, Tracer: tracer})
	result, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(math.MaxUint64))
	if err != nil {
		return nil, nil, err
	}
	return result, tracer.AccessList(), nil
}

// NewBlockContext builds the EVM block environment of header. BLOCKHASH returns zero.
func NewBlockContext(header *types.Header) vm.BlockContext {
	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    header.Coinbase,
		BlockNumber: new(big.Int).Set(header.Number),
		Time:        header.Time,
		Difficulty:  new(big.Int),
		GasLimit:    header.GasLimit,
		BaseFee:     header.BaseFee,
	}
	if header.Difficulty != nil {
		blockCtx.Difficulty.Set(header.Difficulty)
	}
	if blockCtx.Difficulty.Sign() == 0 {
		random := header.MixDigest
		blockCtx.Random = &random
	}
	if header.ExcessBlobGas != nil {
		blockCtx.BlobBaseFee = eip4844.CalcBlobFee(*header.ExcessBlobGas)
	}
	return blockCtx
}
