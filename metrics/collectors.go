package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

var (
	rpcRequests = prom.NewCounterVec(prom.CounterOpts{
		Name: "verifproxy_rpc_requests_total",
		Help: "Inbound JSON-RPC requests split by method and status.",
	}, []string{"method", "status"})
	rpcDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Name:    "verifproxy_rpc_duration_seconds",
		Help:    "Inbound JSON-RPC handling time.",
		Buckets: prom.DefBuckets,
	}, []string{"method"})
	upstreamRequests = prom.NewCounterVec(prom.CounterOpts{
		Name: "verifproxy_upstream_requests_total",
		Help: "Calls made to execution endpoints split by method and status.",
	}, []string{"method", "status"})
	upstreamDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Name:    "verifproxy_upstream_duration_seconds",
		Help:    "Execution endpoint round trip time.",
		Buckets: prom.DefBuckets,
	}, []string{"method"})
	verificationFailures = prom.NewCounterVec(prom.CounterOpts{
		Name: "verifproxy_verification_failures_total",
		Help: "Answers rejected because they did not match a proof or the verified chain.",
	}, []string{"kind"})
	verifiedHead = prom.NewGaugeVec(prom.GaugeOpts{
		Name: "verifproxy_verified_head_number",
		Help: "Block number of the latest and finalized verified heads.",
	}, []string{"kind"})
	activeFilters = prom.NewGauge(prom.GaugeOpts{
		Name: "verifproxy_active_filters",
		Help: "Number of installed filters.",
	})
	rateLimited = prom.NewCounter(prom.CounterOpts{
		Name: "verifproxy_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

func init() {
	prom.MustRegister(rpcRequests)
	prom.MustRegister(rpcDuration)
	prom.MustRegister(upstreamRequests)
	prom.MustRegister(upstreamDuration)
	prom.MustRegister(verificationFailures)
	prom.MustRegister(verifiedHead)
	prom.MustRegister(activeFilters)
	prom.MustRegister(rateLimited)
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

// ObserveRPC records one inbound request.
func ObserveRPC(method string, err error, elapsed time.Duration) {
	rpcRequests.WithLabelValues(method, status(err)).Inc()
	rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveUpstream records one call to an execution endpoint.
func ObserveUpstream(method string, err error, elapsed time.Duration) {
	upstreamRequests.WithLabelValues(method, status(err)).Inc()
	upstreamDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func VerificationFailed(kind string) {
	verificationFailures.WithLabelValues(kind).Inc()
}

func SetVerifiedHead(kind string, number uint64) {
	verifiedHead.WithLabelValues(kind).Set(float64(number))
}

func SetActiveFilters(n int) {
	activeFilters.Set(float64(n))
}

func RateLimited() {
	rateLimited.Inc()
}
