// Command svs-repod serves a packet store to peers: the Face service answers
// Interests from the store, the Store service accepts and returns raw packets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"xdao.co/svs/config"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/grpcstore"
	"xdao.co/svs/storage/storeregistry"
	"xdao.co/svs/transport/grpcface"

	_ "xdao.co/svs/storage/ipfs"
	_ "xdao.co/svs/storage/localfs"
	_ "xdao.co/svs/storage/memstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("svs-repod", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "YAML config file (optional)")
	listen := fs.String("listen", "", "listen address (overrides config server.listen)")
	backend := fs.String("backend", "", "Store backend name (overrides config storage)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	storeregistry.RegisterFlags(fs, storeregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range storeregistry.List(storeregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		if _, err := os.Stat(*configPath); err != nil {
			fmt.Fprintf(errOut, "config: %v\n", err)
			return 1
		}
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
		return 1
	}

	logger, closer, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}
	logger = logger.With("component", "repod")

	var store storage.Store
	var closeFn func() error
	if *backend != "" {
		store, closeFn, err = storeregistry.Open(*backend, storeregistry.UsageDaemon)
	} else {
		store, closeFn, err = cfg.Storage.Open(storeregistry.UsageDaemon, "")
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("svs-repod listening", "address", lis.Addr().String(), "cache_others", cfg.CacheOthers)
	if err := serve(ctx, lis, store, cfg.Transport.MaxMsgBytes, logger); err != nil {
		logger.Error("server failed", "error", err)
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func newServer(store storage.Store, maxMsgBytes int, logger *slog.Logger) (*grpc.Server, *health.Server) {
	var opts []grpc.ServerOption
	if maxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(maxMsgBytes), grpc.MaxSendMsgSize(maxMsgBytes))
	}
	srv := grpc.NewServer(opts...)
	grpcface.RegisterFaceServer(srv, &grpcface.Server{Store: store, Logger: logger.With("service", "face")})
	grpcstore.RegisterStoreServer(srv, &grpcstore.Server{Store: store, Logger: logger.With("service", "store")})

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	return srv, healthSrv
}

// serve runs the gRPC services on lis until ctx is done, then stops gracefully.
func serve(ctx context.Context, lis net.Listener, store storage.Store, maxMsgBytes int, logger *slog.Logger) error {
	srv, healthSrv := newServer(store, maxMsgBytes, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Context cancelled, stopping gRPC server...")
		healthSrv.Shutdown()
		srv.GracefulStop()
		return nil
	})
	return g.Wait()
}
