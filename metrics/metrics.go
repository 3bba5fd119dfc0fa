package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/status-im/verif-proxy/common"
	"github.com/status-im/verif-proxy/logutils"
)

// Server runs and controls the HTTP metrics interface.
type Server struct {
	server   *http.Server
	listener net.Listener
}

func NewMetricsServer(addr string, gatherer prom.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/health", healthHandler())
	mux.Handle("/metrics", Handler(gatherer))
	return &Server{
		server: &http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           mux,
		},
	}
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte("OK"))
		if err != nil {
			logutils.ZapLogger().Error("health handler error", zap.Error(err))
		}
	})
}

func Handler(gatherer prom.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Listen binds the configured address. Serve must be called afterwards.
func (p *Server) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", p.server.Addr)
	if err != nil {
		return nil, err
	}
	p.listener = listener
	return listener.Addr(), nil
}

// Serve blocks until the server is stopped.
func (p *Server) Serve() {
	defer common.LogOnPanic()
	err := p.server.Serve(p.listener)
	if !errors.Is(err, http.ErrServerClosed) {
		logutils.ZapLogger().Error("metrics server stopped", zap.Error(err))
		return
	}
	logutils.ZapLogger().Info("metrics server stopped")
}

func (p *Server) Stop(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}
