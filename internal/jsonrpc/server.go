package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
)

const (
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultHTTPIdleTimeout = 120 * time.Second
	DefaultBatchLimit      = 100
	DefaultBatchMaxSize    = 10 * 1024 * 1024
	DefaultBodyLimit       = 5 * 1024 * 1024
)

type ServerConfig struct {
	Addr            string
	HTTPTimeout     time.Duration
	HTTPIdleTimeout time.Duration
	BatchLimit      int
	BatchMaxSize    int
	BodyLimit       int
	// UnsafeCORS allows every origin, method and header.
	UnsafeCORS bool
}

func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:            addr,
		HTTPTimeout:     DefaultHTTPTimeout,
		HTTPIdleTimeout: DefaultHTTPIdleTimeout,
		BatchLimit:      DefaultBatchLimit,
		BatchMaxSize:    DefaultBatchMaxSize,
		BodyLimit:       DefaultBodyLimit,
	}
}

// Server serves FilterAPI over HTTP.
type Server struct {
	rpcServer  *rpc.Server
	httpServer *http.Server
	log        *zap.SugaredLogger
}

// NewServer registers api and builds the HTTP server. log and m may be nil.
func NewServer(cfg ServerConfig, api *FilterAPI, log *zap.SugaredLogger, m *metrics.Metrics) (*Server, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	rpcServer := rpc.NewServer()
	rpcServer.SetBatchLimits(cfg.BatchLimit, cfg.BatchMaxSize)
	if cfg.BodyLimit > 0 {
		rpcServer.SetHTTPBodyLimit(cfg.BodyLimit)
	}
	if err := rpcServer.RegisterName(Namespace, api); err != nil {
		return nil, fmt.Errorf("failed to register %s namespace: %w", Namespace, err)
	}

	r := mux.NewRouter()
	r.Handle("/", inFlight(m, rpcServer)).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck // best-effort health response
	}).Methods(http.MethodGet)

	handlerWithCors := cors.Default()
	if cfg.UnsafeCORS {
		handlerWithCors = cors.AllowAll()
	}

	return &Server{
		rpcServer: rpcServer,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handlerWithCors.Handler(r),
			ReadHeaderTimeout: cfg.HTTPTimeout,
			ReadTimeout:       cfg.HTTPTimeout,
			WriteTimeout:      cfg.HTTPTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		log: log,
	}, nil
}

// Handler returns the HTTP handler, for mounting in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves in the background.
// The returned channel receives an error if serving fails.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.log.Infow("starting JSON-RPC server", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("json-rpc server: %w", err)
		}
		close(errCh)
	}()
	return errCh, nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.rpcServer.Stop()
	return err
}

func inFlight(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.IncRPCInFlight()
		defer m.DecRPCInFlight()
		next.ServeHTTP(w, r)
	})
}
