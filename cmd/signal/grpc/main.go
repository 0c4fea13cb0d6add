// Package main runs the signaling server over gRPC and grpc-web.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/ion-ortc/cmd/signal/grpc/server"
	"github.com/pion/ion-ortc/pkg/engine"
	log "github.com/pion/ion-ortc/pkg/logger"
	"github.com/pion/ion-ortc/pkg/sfu"
	sig "github.com/pion/ion-ortc/pkg/signal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

// Config defines parameters for configuring the signaling server
type Config struct {
	sfu.Config `mapstructure:",squash"`
	GRPCWeb    server.WebOptions `mapstructure:"grpcweb"`
}

var (
	conf           = Config{GRPCWeb: server.DefaultWebOptions()}
	file           string
	addr           string
	metricsAddr    string
	verbosityLevel int

	logger = log.New()
)

const (
	portRangeLimit = 100
)

func showHelp() {
	fmt.Printf("Usage:%s {params}\n", os.Args[0])
	fmt.Println("      -c {config file}")
	fmt.Println("      -a {listen addr}")
	fmt.Println("      -m {metrics listen addr}")
	fmt.Println("      -h (show help info)")
	fmt.Println("      -v {0-10} (verbosity level, default 0)")
}

func load() bool {
	_, err := os.Stat(file)
	if err != nil {
		return false
	}

	viper.SetConfigFile(file)
	viper.SetConfigType("toml")

	err = viper.ReadInConfig()
	if err != nil {
		logger.Error(err, "config file read failed", "file", file)
		return false
	}
	err = viper.GetViper().Unmarshal(&conf)
	if err != nil {
		logger.Error(err, "config file loaded failed", "file", file)
		return false
	}

	if len(conf.WebRTC.ICEPortRange) > 2 {
		logger.Error(nil, "config file loaded failed. webrtc port must be [min,max]", "file", file)
		return false
	}

	if len(conf.WebRTC.ICEPortRange) != 0 && conf.WebRTC.ICEPortRange[1]-conf.WebRTC.ICEPortRange[0] < portRangeLimit {
		logger.Error(nil, "config file loaded failed. webrtc port must be [min, max] and max - min >= portRangeLimit", "file", file, "portRangeLimit", portRangeLimit)
		return false
	}

	if len(conf.Turn.PortRange) > 2 {
		logger.Error(nil, "config file loaded failed. turn port must be [min,max]", "file", file)
		return false
	}

	logger.V(0).Info("Config file loaded", "file", file)
	return true
}

func parse() bool {
	flag.StringVar(&file, "c", "config.toml", "config file")
	flag.StringVar(&addr, "a", "", "address to use, defaults to grpcweb.addr")
	flag.StringVar(&metricsAddr, "m", ":8100", "metrics to use")
	flag.IntVar(&verbosityLevel, "v", -1, "verbosity level, higher value - more logs")
	help := flag.Bool("h", false, "help info")
	flag.Parse()

	if !load() {
		return false
	}

	if *help {
		return false
	}
	return true
}

func startMetrics(addr string) {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler: m,
	}

	metricsLis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error(err, "cannot bind to metrics endpoint", "addr", addr)
		os.Exit(1)
	}
	logger.Info("Metrics Listening", "addr", addr)

	err = srv.Serve(metricsLis)
	if err != nil {
		logger.Error(err, "metrics server stopped")
	}
}

func main() {
	if !parse() {
		showHelp()
		os.Exit(-1)
	}

	// Check that the -v is not set (default -1)
	if verbosityLevel < 0 {
		verbosityLevel = conf.Log.V
	}

	log.SetGlobalOptions(log.GlobalConfig{V: verbosityLevel})
	logger = log.New()
	sfu.Logger = logger.WithName("sfu")
	engine.Logger = logger.WithName("engine")
	sig.Logger = logger.WithName("signal")

	logger.Info("--- Starting ORTC signaling server ---")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := engine.NewWorker(conf.Engine())
	if err != nil {
		logger.Error(err, "failed to start media worker")
		os.Exit(1)
	}
	defer w.Close()

	mc := sfu.NewMediaContext(w, conf.Router)
	mc.OnFatal(func(err error) {
		logger.Error(err, "media context died, exiting")
		os.Exit(1)
	})
	if err := mc.Initialize(ctx); err != nil {
		logger.Error(err, "media context initialization failed")
		os.Exit(1)
	}
	defer mc.Close()

	sessions := sfu.NewSessionManager(mc)
	defer sessions.Close()

	go startMetrics(metricsAddr)

	opts := conf.GRPCWeb
	if addr != "" {
		opts.Addr = addr
	}
	if err := server.NewWebServer(opts, sessions, logger).Serve(ctx); err != nil {
		logger.Error(err, "failed to serve")
	}
}
