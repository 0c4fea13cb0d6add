// Package main runs the signaling server with every transport enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/pion/ion-ortc/cmd/signal/allrpc/server"
	grpcServer "github.com/pion/ion-ortc/cmd/signal/grpc/server"
	"github.com/pion/ion-ortc/pkg/engine"
	log "github.com/pion/ion-ortc/pkg/logger"
	"github.com/pion/ion-ortc/pkg/sfu"
	sig "github.com/pion/ion-ortc/pkg/signal"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Config defines parameters for configuring the signaling server
type Config struct {
	sfu.Config `mapstructure:",squash"`
	GRPCWeb    grpcServer.WebOptions `mapstructure:"grpcweb"`
}

var (
	file                string
	cert                string
	key                 string
	gaddr, jaddr, waddr string
	verbosityLevel      int

	conf   = Config{GRPCWeb: grpcServer.DefaultWebOptions()}
	logger = log.New()
)

func showHelp() {
	fmt.Printf("Usage:%s {params}\n", os.Args[0])
	fmt.Println("      -c {config file}")
	fmt.Println("      -cert {cert file used by jsonrpc}")
	fmt.Println("      -key {key file used by jsonrpc}")
	fmt.Println("      -gaddr {grpc listen addr}")
	fmt.Println("      -jaddr {jsonrpc listen addr, also serves /healthz, /metrics and /debug}")
	fmt.Println("      -waddr {grpc-web listen addr}")
	fmt.Println("             {at least one of the listen addrs must be set}")
	fmt.Println("      -v {0-10} (verbosity level, default from config)")
	fmt.Println("      -h (show help info)")
}

func load() bool {
	_, err := os.Stat(file)
	if err != nil {
		return false
	}

	viper.SetConfigFile(file)
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("sfu")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

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
	if len(conf.Turn.PortRange) > 2 {
		logger.Error(nil, "config file loaded failed. turn port must be [min,max]", "file", file)
		return false
	}
	if _, err := conf.Router.Codecs(); err != nil {
		logger.Error(err, "config file loaded failed. invalid media codecs", "file", file)
		return false
	}

	logger.V(0).Info("Config file loaded", "file", file)
	return true
}

func parse() bool {
	flag.StringVar(&file, "c", "config.toml", "config file")
	flag.StringVar(&cert, "cert", "", "cert file")
	flag.StringVar(&key, "key", "", "key file")
	flag.StringVar(&jaddr, "jaddr", "", "jsonrpc listening address")
	flag.StringVar(&gaddr, "gaddr", "", "grpc listening address")
	flag.StringVar(&waddr, "waddr", "", "grpc-web listening address")
	flag.IntVar(&verbosityLevel, "v", -1, "verbosity level, higher value - more logs")
	help := flag.Bool("h", false, "help info")
	flag.Parse()

	if *help {
		return false
	}

	// at least set one
	if gaddr == "" && jaddr == "" && waddr == "" {
		return false
	}

	return load()
}

func main() {
	if !parse() {
		showHelp()
		os.Exit(-1)
	}

	if verbosityLevel < 0 {
		verbosityLevel = conf.Log.V
	}
	log.SetGlobalOptions(log.GlobalConfig{V: verbosityLevel})
	logger = log.New()
	sfu.Logger = logger.WithName("sfu")
	engine.Logger = logger.WithName("engine")
	sig.Logger = logger.WithName("signal")

	logger.Info("--- Starting ORTC signaling server ---")

	if conf.SFU.Ballast > 0 {
		ballast := make([]byte, conf.SFU.Ballast*1024*1024)
		defer runtime.KeepAlive(ballast)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.New(ctx, conf.Config, logger, func(err error) {
		logger.Error(err, "media context died, exiting")
		os.Exit(1)
	})
	if err != nil {
		logger.Error(err, "media context initialization failed")
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	if jaddr != "" {
		g.Go(func() error { return s.ServeJSONRPC(ctx, jaddr, cert, key) })
	}
	if gaddr != "" {
		g.Go(func() error { return s.ServeGRPC(ctx, gaddr) })
	}
	if waddr != "" {
		opts := conf.GRPCWeb
		opts.Addr = waddr
		g.Go(func() error { return s.ServeGRPCWeb(ctx, opts) })
	}

	err = g.Wait()
	s.Close()
	if err != nil {
		logger.Error(err, "server stopped")
		os.Exit(1)
	}
	logger.Info("--- ORTC signaling server stopped ---")
}
