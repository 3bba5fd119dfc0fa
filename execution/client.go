package execution

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
)

type CallClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

type BatchCallClient interface {
	BatchCallContext(ctx context.Context, b []gethrpc.BatchElem) error
}

// RPCClient is the subset of *gethrpc.Client used to reach execution endpoints.
type RPCClient interface {
	CallClient
	BatchCallClient
	Close()
}

// Client is the raw execution data source. Every failure it returns is an UpstreamRpcError.
// There are no retries and no failover: callers see the first error.
type Client struct {
	rpc      RPCClient
	endpoint string
	log      *zap.Logger
}

// Dial connects to the primary endpoint of mode.
func Dial(ctx context.Context, mode *Mode) (*Client, error) {
	endpoint, err := mode.PrimaryEndpoint()
	if err != nil {
		return nil, err
	}
	return DialEndpoint(ctx, endpoint)
}

func DialEndpoint(ctx context.Context, endpoint string) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.UpstreamRPC("dial", err)
	}
	return NewClient(rpcClient, endpoint), nil
}

func NewClient(rpcClient RPCClient, endpoint string) *Client {
	return &Client{
		rpc:      rpcClient,
		endpoint: endpoint,
		log:      logutils.ZapLogger().Named("execution").With(zap.String("endpoint", redact(endpoint))),
	}
}

// Endpoint returns the URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call performs a JSON-RPC call and decodes the result into result.
func (c *Client) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	metrics.ObserveUpstream(method, err, time.Since(start))
	if err != nil {
		c.log.Debug("upstream call failed", zap.String("method", method), zap.Error(err))
		return errors.UpstreamRPC(method, err)
	}
	return nil
}

// CallRaw returns the undecoded result. A JSON null result is returned as nil.
func (c *Client) CallRaw(ctx context.Context, method string, args ...interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, &raw, method, args...); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// BatchCall sends all elements in one round trip. Element errors are converted in place.
func (c *Client) BatchCall(ctx context.Context, batch []gethrpc.BatchElem) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	err := c.rpc.BatchCallContext(ctx, batch)
	metrics.ObserveUpstream("batch", err, time.Since(start))
	if err != nil {
		c.log.Debug("upstream batch failed", zap.Int("size", len(batch)), zap.Error(err))
		return errors.UpstreamRPC("batch", err)
	}
	for i := range batch {
		if batch[i].Error != nil {
			batch[i].Error = errors.UpstreamRPC(batch[i].Method, batch[i].Error)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// redact drops path and query, which commonly carry provider API keys.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}
