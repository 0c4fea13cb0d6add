package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"github.com/pion/ion-ortc/pkg/sfu"
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	pb "github.com/pion/ion-ortc/cmd/signal/grpc/proto"
)

// WebOptions configure a listener serving both gRPC and grpc-web.
type WebOptions struct {
	Addr                  string        `mapstructure:"addr"`
	Cert                  string        `mapstructure:"cert"`
	Key                   string        `mapstructure:"key"`
	AllowAllOrigins       bool          `mapstructure:"allowallorigins"`
	AllowedOrigins        []string      `mapstructure:"allowedorigins"`
	AllowedHeaders        []string      `mapstructure:"allowedheaders"`
	UseWebSocket          bool          `mapstructure:"websocket"`
	WebsocketPingInterval time.Duration `mapstructure:"websocketping"`
}

// DefaultWebOptions listen on :9090 with websocket transport enabled.
func DefaultWebOptions() WebOptions {
	return WebOptions{
		Addr:                  ":9090",
		UseWebSocket:          true,
		WebsocketPingInterval: 30 * time.Second,
	}
}

func (o WebOptions) useTLS() bool {
	return o.Cert != "" && o.Key != ""
}

// NewGRPCServer returns a grpc server with the Signal service and
// prometheus interceptors registered.
func NewGRPCServer(sessions *sfu.SessionManager, logger logr.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)
	pb.RegisterSignalServer(s, NewServer(sessions, logger))
	grpc_prometheus.Register(s)
	return s
}

// WebServer serves gRPC and grpc-web on the same port.
type WebServer struct {
	options  WebOptions
	sessions *sfu.SessionManager
	logger   logr.Logger
	origins  map[string]struct{}
}

// NewWebServer returns a server for sessions. Serve starts it.
func NewWebServer(options WebOptions, sessions *sfu.SessionManager, logger logr.Logger) *WebServer {
	origins := make(map[string]struct{}, len(options.AllowedOrigins))
	for _, o := range options.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &WebServer{
		options:  options,
		sessions: sessions,
		logger:   logger.WithName("grpc-web"),
		origins:  origins,
	}
}

func (s *WebServer) allowed(origin string) bool {
	if s.options.AllowAllOrigins {
		return true
	}
	_, ok := s.origins[origin]
	return ok
}

func (s *WebServer) allowedWebsocket(req *http.Request) bool {
	if s.options.AllowAllOrigins {
		return true
	}
	origin, err := grpcweb.WebsocketRequestOrigin(req)
	if err != nil {
		s.logger.Error(err, "websocket origin")
		return false
	}
	return s.allowed(origin)
}

// Handler wraps grpcServer for grpc-web clients.
func (s *WebServer) Handler(grpcServer *grpc.Server) http.Handler {
	options := []grpcweb.Option{
		grpcweb.WithCorsForRegisteredEndpointsOnly(false),
		grpcweb.WithOriginFunc(s.allowed),
	}
	if s.options.UseWebSocket {
		options = append(options,
			grpcweb.WithWebsockets(true),
			grpcweb.WithWebsocketOriginFunc(s.allowedWebsocket),
			grpcweb.WithWebsocketPingInterval(s.options.WebsocketPingInterval),
		)
	}
	if len(s.options.AllowedHeaders) > 0 {
		options = append(options, grpcweb.WithAllowedRequestHeaders(s.options.AllowedHeaders))
	}
	return grpcweb.WrapServer(grpcServer, options...)
}

func (s *WebServer) listen() (net.Listener, error) {
	if !s.options.useTLS() {
		return net.Listen("tcp", s.options.Addr)
	}
	cert, err := tls.LoadX509KeyPair(s.options.Cert, s.options.Key)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.options.Addr, &tls.Config{Certificates: []tls.Certificate{cert}})
}

// Serve blocks until ctx is done or a listener fails.
func (s *WebServer) Serve(ctx context.Context) error {
	if s.options.AllowAllOrigins && len(s.options.AllowedOrigins) != 0 {
		s.logger.Info("allowallorigins is set, allowedorigins are ignored")
	}

	l, err := s.listen()
	if err != nil {
		return err
	}

	grpcServer := NewGRPCServer(s.sessions, s.logger)
	httpServer := &http.Server{Handler: s.Handler(grpcServer)}

	m := cmux.New(l)
	grpcListener := m.Match(cmux.HTTP2HeaderField("content-type", "application/grpc"))
	httpListener := m.Match(cmux.HTTP1Fast())

	s.logger.V(0).Info("grpc/grpc-web listening", "addr", l.Addr().String(), "tls", s.options.useTLS(), "websocket", s.options.UseWebSocket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Serve(grpcListener) })
	g.Go(func() error { return httpServer.Serve(httpListener) })
	g.Go(m.Serve)
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		_ = httpServer.Close()
		_ = l.Close()
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	s.logger.Error(err, "grpc/grpc-web server stopped")
	return err
}
