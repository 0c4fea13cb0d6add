// Package server wires the media engine, the media context and the session
// manager, and serves them over JSON-RPC, gRPC and grpc-web.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
	"github.com/lucsky/cuid"
	grpcServer "github.com/pion/ion-ortc/cmd/signal/grpc/server"
	jsonrpcServer "github.com/pion/ion-ortc/cmd/signal/json-rpc/server"
	"github.com/pion/ion-ortc/pkg/engine"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/jsonrpc2"
	websocketjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

const shutdownTimeout = 5 * time.Second

// Server serves one media context to every signaling transport.
type Server struct {
	worker   engine.Worker
	mc       *sfu.MediaContext
	sessions *sfu.SessionManager
	logger   logr.Logger
	upgrader websocket.Upgrader
}

// New starts a pion worker from c and initializes the media context on it.
// onFatal, if set, is called once should the media context die.
func New(ctx context.Context, c sfu.Config, logger logr.Logger, onFatal func(error), opts ...engine.WorkerOption) (*Server, error) {
	w, err := engine.NewWorker(c.Engine(), opts...)
	if err != nil {
		return nil, &sfu.FatalError{Err: err}
	}
	s, err := NewWithWorker(ctx, w, c.Router, logger, onFatal)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

// NewWithWorker initializes a media context on w. The server owns w.
func NewWithWorker(ctx context.Context, w engine.Worker, c sfu.RouterConfig, logger logr.Logger, onFatal func(error)) (*Server, error) {
	mc := sfu.NewMediaContext(w, c)
	if onFatal != nil {
		mc.OnFatal(onFatal)
	}
	if err := mc.Initialize(ctx); err != nil {
		return nil, err
	}
	return &Server{
		worker:   w,
		mc:       mc,
		sessions: sfu.NewSessionManager(mc),
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *sfu.SessionManager {
	return s.sessions
}

// Handler serves the websocket JSON-RPC endpoint along with health, metrics
// and profiling routes.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(loggerMiddleware(s.logger.WithName("http")))
	router.Use(middleware.Recoverer)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ORTC signaling server is running\n"))
	})
	router.Get("/healthz", s.healthz)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/ws", s.serveWebsocket)
	router.Mount("/debug", middleware.Profiler())
	return router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if !s.mc.Ready() {
		http.Error(w, s.mc.State().String(), http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(err, "websocket upgrade")
		return
	}
	defer c.Close()

	id := cuid.New()
	logger := s.logger.WithValues("session_id", id)
	p := jsonrpcServer.NewJSONSignal(s.logger.WithName("jsonrpc"))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	jc := jsonrpc2.NewConn(ctx, websocketjsonrpc2.NewObjectStream(c), jsonrpc2.AsyncHandler(p))
	defer jc.Close()

	session, err := s.sessions.OnConnect(id, &jsonrpcServer.Notifier{Conn: jc})
	if err != nil {
		logger.Error(err, "connect")
		return
	}
	defer s.sessions.OnDisconnect(id)
	p.Start(session)

	<-jc.DisconnectNotify()
	logger.V(1).Info("websocket closed")
}

// ServeJSONRPC serves Handler on addr, with TLS when cert and key are set,
// until ctx is done.
func (s *Server) ServeJSONRPC(ctx context.Context, addr, cert, key string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(err, "jsonrpc shutdown")
		}
	}()

	var err error
	if key != "" && cert != "" {
		s.logger.Info("JsonRPC Listening", "addr", "https://"+addr)
		err = srv.ListenAndServeTLS(cert, key)
	} else {
		s.logger.Info("JsonRPC Listening", "addr", "http://"+addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeGRPC serves the Signal service on addr until ctx is done.
func (s *Server) ServeGRPC(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := grpcServer.NewGRPCServer(s.sessions, s.logger.WithName("grpc"))
	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	s.logger.Info("GRPC Listening", "addr", addr)
	return gs.Serve(l)
}

// ServeGRPCWeb serves gRPC and grpc-web on one port until ctx is done.
func (s *Server) ServeGRPCWeb(ctx context.Context, opts grpcServer.WebOptions) error {
	return grpcServer.NewWebServer(opts, s.sessions, s.logger).Serve(ctx)
}

// Close disconnects every session, then stops the media context and the
// worker.
func (s *Server) Close() {
	s.sessions.Close()
	s.mc.Close()
	if err := s.worker.Close(); err != nil {
		s.logger.Error(err, "closing worker")
	}
}
