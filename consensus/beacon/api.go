package beacon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/status-im/verif-proxy/consensus"
)

const (
	optimisticUpdatePath = "/eth/v1/beacon/light_client/optimistic_update"
	finalityUpdatePath   = "/eth/v1/beacon/light_client/finality_update"
)

var errNoExecutionHeader = errors.New("light client header lacks an execution payload header")

// LightAPI reads light client updates from a beacon node REST endpoint.
type LightAPI struct {
	url    string
	client *http.Client
}

func NewLightAPI(url string, client *http.Client) *LightAPI {
	if client == nil {
		client = http.DefaultClient
	}
	return &LightAPI{url: strings.TrimRight(url, "/"), client: client}
}

func (api *LightAPI) httpGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.url+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := api.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error from API endpoint %q: status code %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// executionHeader is the Capella+ execution payload header in beacon API encoding.
type executionHeader struct {
	ParentHash       common.Hash           `json:"parent_hash"`
	FeeRecipient     common.Address        `json:"fee_recipient"`
	StateRoot        common.Hash           `json:"state_root"`
	ReceiptsRoot     common.Hash           `json:"receipts_root"`
	BlockNumber      *math.HexOrDecimal64  `json:"block_number"`
	GasLimit         math.HexOrDecimal64   `json:"gas_limit"`
	GasUsed          math.HexOrDecimal64   `json:"gas_used"`
	Timestamp        math.HexOrDecimal64   `json:"timestamp"`
	BaseFeePerGas    *math.HexOrDecimal256 `json:"base_fee_per_gas"`
	BlockHash        common.Hash           `json:"block_hash"`
	TransactionsRoot common.Hash           `json:"transactions_root"`
}

type lightClientHeader struct {
	Execution *executionHeader `json:"execution"`
}

func (h *lightClientHeader) head() (*consensus.Head, error) {
	if h == nil || h.Execution == nil || h.Execution.BlockNumber == nil || h.Execution.BlockHash == (common.Hash{}) {
		return nil, errNoExecutionHeader
	}
	e := h.Execution
	head := &consensus.Head{
		Number:           uint64(*e.BlockNumber),
		Hash:             e.BlockHash,
		ParentHash:       e.ParentHash,
		StateRoot:        e.StateRoot,
		ReceiptsRoot:     e.ReceiptsRoot,
		TransactionsRoot: e.TransactionsRoot,
		Timestamp:        uint64(e.Timestamp),
		GasLimit:         uint64(e.GasLimit),
		GasUsed:          uint64(e.GasUsed),
		FeeRecipient:     e.FeeRecipient,
	}
	if e.BaseFeePerGas != nil {
		head.BaseFee = new(big.Int).Set((*big.Int)(e.BaseFeePerGas))
	}
	return head, nil
}

type lightClientUpdate struct {
	AttestedHeader  *lightClientHeader `json:"attested_header"`
	FinalizedHeader *lightClientHeader `json:"finalized_header"`
}

func decodeUpdate(enc []byte) (*lightClientUpdate, error) {
	var data struct {
		Data *lightClientUpdate `json:"data"`
	}
	if err := json.Unmarshal(enc, &data); err != nil {
		return nil, err
	}
	if data.Data == nil {
		// some clients serve the update without the data envelope
		data.Data = new(lightClientUpdate)
		if err := json.Unmarshal(enc, data.Data); err != nil {
			return nil, err
		}
	}
	return data.Data, nil
}

// OptimisticHead returns the execution head attested by the latest optimistic update.
func (api *LightAPI) OptimisticHead(ctx context.Context) (*consensus.Head, error) {
	resp, err := api.httpGet(ctx, optimisticUpdatePath)
	if err != nil {
		return nil, err
	}
	update, err := decodeUpdate(resp)
	if err != nil {
		return nil, err
	}
	return update.AttestedHeader.head()
}

// FinalizedHead returns the execution head finalized by the latest finality update.
func (api *LightAPI) FinalizedHead(ctx context.Context) (*consensus.Head, error) {
	resp, err := api.httpGet(ctx, finalityUpdatePath)
	if err != nil {
		return nil, err
	}
	update, err := decodeUpdate(resp)
	if err != nil {
		return nil, err
	}
	return update.FinalizedHeader.head()
}
