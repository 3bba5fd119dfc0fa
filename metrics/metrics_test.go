package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRPC(t *testing.T) {
	before := testutil.ToFloat64(rpcRequests.WithLabelValues("eth_chainId", statusOK))
	ObserveRPC("eth_chainId", nil, time.Millisecond)
	ObserveRPC("eth_chainId", errors.New("boom"), time.Millisecond)

	require.Equal(t, before+1, testutil.ToFloat64(rpcRequests.WithLabelValues("eth_chainId", statusOK)))
	require.GreaterOrEqual(t, testutil.ToFloat64(rpcRequests.WithLabelValues("eth_chainId", statusError)), float64(1))
}

func TestGauges(t *testing.T) {
	SetActiveFilters(3)
	require.Equal(t, float64(3), testutil.ToFloat64(activeFilters))

	SetVerifiedHead("latest", 100)
	require.Equal(t, float64(100), testutil.ToFloat64(verifiedHead.WithLabelValues("latest")))
}

func TestMetricsServer(t *testing.T) {
	server := NewMetricsServer("127.0.0.1:0", nil)
	addr, err := server.Listen()
	require.NoError(t, err)
	go server.Serve()
	defer func() { require.NoError(t, server.Stop(context.Background())) }()

	ObserveUpstream("eth_getProof", nil, time.Millisecond)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "OK", string(body))

	resp, err = http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.True(t, strings.Contains(string(body), "verifproxy_upstream_requests_total"))
}
