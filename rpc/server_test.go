package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/status-im/verif-proxy/chain/ethereum"
	"github.com/status-im/verif-proxy/consensus"
	mock_consensus "github.com/status-im/verif-proxy/consensus/mock"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution"
	"github.com/status-im/verif-proxy/execution/executiontest"
	"github.com/status-im/verif-proxy/node"
)

const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeTimeout        = -32002
)

var ethMethods = []string{
	"eth_getBalance", "eth_getTransactionCount", "eth_getBlockTransactionCountByHash",
	"eth_getBlockTransactionCountByNumber", "eth_getCode", "eth_getClientVersion", "eth_call",
	"eth_estimateGas", "eth_chainId", "eth_gasPrice", "eth_maxPriorityFeePerGas", "eth_blockNumber",
	"eth_getBlockByNumber", "eth_getBlockByHash", "eth_sendRawTransaction", "eth_getTransactionReceipt",
	"eth_getTransactionByHash", "eth_getTransactionByBlockHashAndIndex", "eth_getLogs",
	"eth_getFilterChanges", "eth_uninstallFilter", "eth_newFilter", "eth_newBlockFilter",
	"eth_newPendingTransactionFilter", "eth_getStorageAt", "eth_coinbase", "eth_syncing",
}

type testProxy struct {
	chain  *executiontest.Chain
	server *Server
	url    string
}

func newTestProxy(t *testing.T, cfg Config) *testProxy {
	c := executiontest.NewChain(executiontest.NewState(nil), 4)
	backend := executiontest.NewBackend(c)

	ctrl := gomock.NewController(t)
	cons := mock_consensus.NewMockConsensus(ctrl)
	cons.EXPECT().ChainID().Return(uint64(1)).AnyTimes()
	cons.EXPECT().LatestHead(gomock.Any()).Return(c.Latest().Head(), nil).AnyTimes()
	cons.EXPECT().FinalizedHead(gomock.Any()).Return(c.Blocks[1].Head(), nil).AnyTimes()
	cons.EXPECT().SyncStatus(gomock.Any()).Return(&consensus.SyncStatus{}, nil).AnyTimes()

	network, err := ethereum.ForName("mainnet")
	require.NoError(t, err)
	n, err := node.New(node.Config{}, execution.NewMode([]string{"inproc://upstream"}, nil), network, cons,
		execution.NewClient(backend.Dial(), "inproc://upstream"), nil)
	require.NoError(t, err)
	t.Cleanup(n.Close)

	api, err := NewAPI(n)
	require.NoError(t, err)

	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	server := NewServer(cfg, api)
	addr, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, server.Stop(context.Background()))
	})
	return &testProxy{chain: c, server: server, url: "http://" + addr.String()}
}

func (p *testProxy) post(t *testing.T, body string) (int, []byte) {
	status, out, err := post(p.url, body)
	require.NoError(t, err)
	return status, out
}

func post(url, body string) (int, []byte, error) {
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

type testError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type testResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *testError      `json:"error"`
}

func (p *testProxy) call(t *testing.T, method string, params ...interface{}) testResponse {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	status, out := p.post(t, string(body))
	require.Equal(t, http.StatusOK, status)
	var resp testResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func TestMethodTable(t *testing.T) {
	proxy := newTestProxy(t, Config{})
	methods := proxy.server.registry.Methods()
	require.Len(t, methods, len(ethMethods)+1)
	for _, name := range append(ethMethods, "net_version") {
		require.Contains(t, methods, name)
	}
}

func TestMergeRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("net", NewNetAPI(nil)))
	other := NewRegistry()
	require.NoError(t, other.Register("net", NewNetAPI(nil)))

	require.ErrorIs(t, r.Merge(other), errors.ErrServerStartup)
	require.ErrorIs(t, r.Register("net", NewNetAPI(nil)), errors.ErrServerStartup)
	require.Equal(t, []string{"net_version"}, r.Methods())

	require.ErrorIs(t, r.Register("empty", struct{}{}), errors.ErrServerStartup)
}

func TestStartOnlyOnce(t *testing.T) {
	proxy := newTestProxy(t, Config{})
	_, err := proxy.server.Start()
	require.ErrorIs(t, err, errors.ErrServerStartup)

	server := NewServer(Config{Address: "127.0.0.1:0"}, NewRegistry())
	_, err = server.Start()
	require.NoError(t, err)
	require.NoError(t, server.Stop(context.Background()))
	require.Nil(t, server.Addr())

	_, err = server.Start()
	require.ErrorIs(t, err, errors.ErrServerStartup)
}

func TestStartOnUsedAddressFails(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	server := NewServer(Config{Address: listener.Addr().String()}, NewRegistry())
	_, err = server.Start()
	require.ErrorIs(t, err, errors.ErrServerStartup)
	require.NoError(t, server.Stop(context.Background()))
}

func TestAnswers(t *testing.T) {
	proxy := newTestProxy(t, Config{})

	resp := proxy.call(t, "eth_blockNumber")
	require.Nil(t, resp.Error)
	require.JSONEq(t, fmt.Sprintf("%q", hexutil.Uint64(proxy.chain.Latest().Number()).String()), string(resp.Result))

	resp = proxy.call(t, "net_version")
	require.JSONEq(t, `"0x1"`, string(resp.Result))

	resp = proxy.call(t, "eth_getStorageAt", common.Address{}, "0x0", "latest")
	require.Nil(t, resp.Error)
	require.JSONEq(t, `"0x0"`, string(resp.Result))

	resp = proxy.call(t, "eth_getBlockByHash", common.HexToHash("0xdead"), false)
	require.Nil(t, resp.Error)
	require.Equal(t, "null", string(resp.Result))

	resp = proxy.call(t, "eth_syncing")
	require.Equal(t, "false", string(resp.Result))

	resp = proxy.call(t, "eth_getClientVersion")
	require.Contains(t, string(resp.Result), "verif-proxy")
}

func TestNodeErrorsUseCodeOne(t *testing.T) {
	proxy := newTestProxy(t, Config{})

	resp := proxy.call(t, "eth_uninstallFilter", "0x99")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeCallFailed, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "filter not found")
}

func TestProtocolErrors(t *testing.T) {
	proxy := newTestProxy(t, Config{})

	resp := proxy.call(t, "eth_unknown")
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = proxy.call(t, "eth_getBalance")
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = proxy.call(t, "eth_getBalance", "not an address", "latest")
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = proxy.call(t, "eth_blockNumber", "extra")
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, out := proxy.post(t, `{"jsonrpc":"2.0","id":1,"method":"eth_getBalance","params":{}}`)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(out), `"code":-32602`)

	_, out = proxy.post(t, `{"jsonrpc":`)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, string(out))

	_, out = proxy.post(t, `{"jsonrpc":"2.0","id":7}`)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":7,"error":{"code":-32600,"message":"invalid request"}}`, string(out))

	_, out = proxy.post(t, `[]`)
	require.Contains(t, string(out), `"code":-32600`)
}

func TestBatchKeepsOrderAndSkipsNotifications(t *testing.T) {
	proxy := newTestProxy(t, Config{})

	status, out := proxy.post(t, `[
		{"jsonrpc":"2.0","id":"a","method":"eth_chainId"},
		{"jsonrpc":"2.0","method":"eth_blockNumber"},
		{"jsonrpc":"2.0","id":"b","method":"eth_missing"},
		{"jsonrpc":"2.0","id":"c"},
		{"jsonrpc":"2.0","id":"d","method":"net_version"}
	]`)
	require.Equal(t, http.StatusOK, status)

	var responses []testResponse
	require.NoError(t, json.Unmarshal(out, &responses))
	require.Len(t, responses, 4)
	require.Equal(t, `"a"`, string(responses[0].ID))
	require.JSONEq(t, `"0x1"`, string(responses[0].Result))
	require.Equal(t, `"b"`, string(responses[1].ID))
	require.Equal(t, codeMethodNotFound, responses[1].Error.Code)
	require.Equal(t, `"c"`, string(responses[2].ID))
	require.Equal(t, codeInvalidRequest, responses[2].Error.Code)
	require.Equal(t, `"d"`, string(responses[3].ID))

	status, out = proxy.post(t, `{"jsonrpc":"2.0","method":"eth_blockNumber"}`)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, bytes.TrimSpace(out))
}

func TestHTTPTransportChecks(t *testing.T) {
	proxy := newTestProxy(t, Config{})

	// empty GET is a health check
	resp, err := http.Get(proxy.url)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, proxy.url, bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(proxy.url, "text/plain", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	proxy := newTestProxy(t, Config{RequestsPerSecond: 1})

	status, _ := proxy.post(t, `{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = proxy.post(t, `{"jsonrpc":"2.0","id":2,"method":"eth_chainId"}`)
	require.Equal(t, http.StatusTooManyRequests, status)
}

func TestWebsocket(t *testing.T) {
	proxy := newTestProxy(t, Config{WSEnabled: true})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+proxy.url[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":3,"method":"eth_chainId"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, out, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":"0x1"}`, string(out))
}

func TestWebsocketHandshakeIsRateLimited(t *testing.T) {
	proxy := newTestProxy(t, Config{WSEnabled: true, RequestsPerSecond: 1})
	url := "ws" + proxy.url[len("http"):]

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	proxy := newTestProxy(t, Config{CORSOrigins: []string{"https://wallet.example"}})

	req, err := http.NewRequest(http.MethodPost, proxy.url, bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://wallet.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://wallet.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

// blockingBackend answers eth_blockNumber once released.
type blockingBackend struct {
	Backend
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBackend) BlockNumber(ctx context.Context) (uint64, error) {
	b.enterOnce.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return 7, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func startServer(t *testing.T, cfg Config, b Backend) (*Server, string) {
	api, err := NewAPI(b)
	require.NoError(t, err)
	cfg.Address = "127.0.0.1:0"
	server := NewServer(cfg, api)
	addr, err := server.Start()
	require.NoError(t, err)
	return server, addr.String()
}

func TestStopWaitsForInFlightRequests(t *testing.T) {
	backend := newBlockingBackend()
	server, addr := startServer(t, Config{}, backend)

	type answer struct {
		out []byte
		err error
	}
	answered := make(chan answer, 1)
	go func() {
		_, out, err := post("http://"+addr, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`)
		answered <- answer{out, err}
	}()
	select {
	case <-backend.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the backend")
	}

	stopped := make(chan error, 1)
	go func() {
		stopped <- server.Stop(context.Background())
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}, 5*time.Second, 10*time.Millisecond, "new connections are still accepted")

	select {
	case err := <-stopped:
		t.Fatalf("stop returned with a request in flight: %v", err)
	default:
	}

	close(backend.release)
	result := <-answered
	require.NoError(t, result.err)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"0x7"}`, string(result.out))
	require.NoError(t, <-stopped)
}

func TestRequestTimeout(t *testing.T) {
	server, addr := startServer(t, Config{RequestTimeout: 50 * time.Millisecond}, newBlockingBackend())
	t.Cleanup(func() {
		require.NoError(t, server.Stop(context.Background()))
	})

	status, out, err := post("http://"+addr, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	var resp testResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeTimeout, resp.Error.Code)
}

func TestStorageSlotDecoding(t *testing.T) {
	var slot storageSlot
	require.NoError(t, json.Unmarshal([]byte(`"0x1"`), &slot))
	require.Equal(t, common.HexToHash("0x01"), common.Hash(slot))

	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf("%q", common.HexToHash("0xabcd").Hex())), &slot))
	require.Equal(t, common.HexToHash("0xabcd"), common.Hash(slot))

	require.Error(t, json.Unmarshal([]byte(`"0xzz"`), &slot))
}
