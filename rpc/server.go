package rpc

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/verif-proxy/common"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
)

const (
	MaxRequestContentLength = 5 * 1024 * 1024
	maxBatchItems           = 1000
	maxBatchResponseSize    = 25 * 1024 * 1024
	readHeaderTimeout       = 5 * time.Second
)

type Config struct {
	// Address is host:port. Port 0 picks a free port.
	Address string
	// CORSOrigins enables CORS for the listed origins and restricts browser websocket
	// origins to them. "*" allows any.
	CORSOrigins []string
	WSEnabled   bool
	// RequestsPerSecond limits HTTP requests and websocket handshakes across all clients.
	// Zero disables the limit.
	RequestsPerSecond float64
	// RequestBurst defaults to RequestsPerSecond, at least 1.
	RequestBurst int
	// RequestTimeout bounds the handling of one HTTP payload. Zero means no bound.
	RequestTimeout time.Duration
}

// Server serves a Registry through go-ethereum's RPC server, over HTTP POST and, when
// enabled, websocket on the same path. A Server is started at most once.
type Server struct {
	cfg      Config
	registry *Registry
	limiter  *rate.Limiter
	log      *zap.Logger

	lock     sync.Mutex
	started  bool
	rpc      *gethrpc.Server
	server   *http.Server
	listener net.Listener
}

func NewServer(cfg Config, registry *Registry) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		log:      logutils.ZapLogger().Named("rpc"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst == 0 {
			burst = int(cfg.RequestsPerSecond)
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Start binds the listener and serves in the background. It returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.started {
		return nil, errors.ServerStartup(nil, "server already started")
	}
	s.started = true

	rpcServer, err := s.registry.newServer()
	if err != nil {
		return nil, err
	}
	rpcServer.SetHTTPBodyLimit(MaxRequestContentLength)
	rpcServer.SetBatchLimits(maxBatchItems, maxBatchResponseSize)

	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		rpcServer.Stop()
		return nil, errors.ServerStartup(err, "failed to bind %s", s.cfg.Address)
	}

	s.rpc = rpcServer
	s.server = &http.Server{
		Handler:           s.handler(rpcServer),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.listener = listener

	go func(server *http.Server) {
		defer common.LogOnPanic()
		if err := server.Serve(listener); !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("rpc server closed with error", zap.Error(err))
		}
	}(s.server)

	s.log.Info("rpc server started", zap.Stringer("address", listener.Addr()), zap.Bool("ws", s.cfg.WSEnabled))
	return listener.Addr(), nil
}

// Addr returns the bound address, or nil when not serving.
func (s *Server) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections and waits for in-flight HTTP requests, then closes
// websocket connections.
func (s *Server) Stop(ctx context.Context) error {
	s.lock.Lock()
	server, rpcServer := s.server, s.rpc
	s.server, s.rpc, s.listener = nil, nil, nil
	s.lock.Unlock()

	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	rpcServer.Stop()
	s.log.Info("rpc server stopped")
	return err
}

func (s *Server) handler(rpcServer *gethrpc.Server) http.Handler {
	var ws http.Handler
	if s.cfg.WSEnabled {
		ws = rpcServer.WebsocketHandler(s.cfg.CORSOrigins)
	}
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if ws != nil && websocket.IsWebSocketUpgrade(r) {
			ws.ServeHTTP(w, r)
			return
		}
		ctx, cancel := s.requestContext(r.Context())
		defer cancel()
		rpcServer.ServeHTTP(w, r.WithContext(ctx))
	})
	if len(s.cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodGet},
			AllowedHeaders: []string{"*"},
			MaxAge:         600,
		}).Handler(handler)
	}
	return handler
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := withRequestID(parent)
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) allow() bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	metrics.RateLimited()
	return false
}
