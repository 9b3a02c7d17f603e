package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"

	"xdao.co/svs/config"
	"xdao.co/svs/fetch"
	"xdao.co/svs/internal/tracing"
	"xdao.co/svs/name"
	"xdao.co/svs/storage"
	"xdao.co/svs/svs"
	"xdao.co/svs/transport"
	"xdao.co/svs/transport/grpcface"
	"xdao.co/svs/transport/local"
)

const tracerName = "xdao.co/svs/cmd/svs"

func cmdFetch(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var group, node, target, timeout, outPath string
	var seq, high uint64
	var retries int
	var cacheOthers bool
	fs.StringVar(&group, "group", "", "Group prefix (overrides config group_prefix)")
	fs.StringVar(&node, "node", "", "Node id whose objects are fetched")
	fs.Uint64Var(&seq, "seq", 0, "Sequence number (low bound when --high is set)")
	fs.Uint64Var(&high, "high", 0, "Fetch the inclusive range --seq..--high")
	fs.BoolVar(&cacheOthers, "cache-others", false, "Shared namespace; store fetched packets (overrides config)")
	fs.StringVar(&target, "target", "", "gRPC face host:port (overrides config transport.target)")
	fs.IntVar(&retries, "retries", 0, "Retry budget (overrides config fetch.retries)")
	fs.StringVar(&timeout, "timeout", "", "Per-attempt timeout, e.g. 6s (overrides config fetch.timeout)")
	fs.StringVar(&outPath, "out", "", "Output file (default stdout); with --high, a directory")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: svs fetch [common flags] --node <id> --seq <n> [--high <n>] [--out <file>]")
		return 2
	}
	set := setFlags(fs)
	remote, err := parseName("node", node)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if !set["seq"] {
		fmt.Fprintln(errOut, "missing --seq")
		return 2
	}
	ranged := set["high"]
	if ranged && high < seq {
		fmt.Fprintf(errOut, "invalid --high: %d is below --seq %d\n", high, seq)
		return 2
	}

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if set["group"] {
		cfg.GroupPrefix = group
	}
	if set["cache-others"] {
		cfg.CacheOthers = cacheOthers
	}
	if set["target"] {
		cfg.Transport.Target = target
	}
	if set["retries"] {
		cfg.Fetch.Retries = retries
	}
	if set["timeout"] {
		cfg.Fetch.Timeout = timeout
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
	tp, cleanup, err := tracing.NewProvider(cfg.Tracing, "svs", logger)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer cleanup()

	store, closeStore, err := common.openStore(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeStore != nil {
		defer closeStore()
	}
	client, closeClient, err := newClient(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(errOut, "dial %s: %v\n", cfg.Transport.Target, err)
		return 1
	}
	if closeClient != nil {
		defer closeClient()
	}

	g, err := cfg.Group()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	// The fetching side never signs; the local node id only labels the instance.
	localID := remote
	if cfg.NodeID != "" {
		if localID, err = cfg.Node(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	vcfg := *cfg
	vcfg.Security.Signer = config.SignerConfig{}
	sec, err := vcfg.SecurityOptions(nil)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	sh, err := svs.NewShared(svs.Config{
		GroupPrefix: g,
		NodeID:      localID,
		CacheOthers: cfg.CacheOthers,
		Core:        svs.NewStaticCore(0),
		Client:      client,
		Security:    sec,
		Store:       store,
		Timeout:     cfg.FetchTimeout(logger),
		Parallelism: cfg.Fetch.Parallelism,
		Observer:    fetch.NewLogObserver(logger),
		Tracer:      tp.Tracer(tracerName),
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if ranged {
		return fetchRange(ctx, sh, remote, seq, high, cfg.Fetch.Retries, outPath, out, errOut)
	}

	res := sh.FetchData(ctx, remote, seq, cfg.Fetch.Retries)
	if !res.Delivered() {
		fmt.Fprintf(errOut, "fetch %s: %v\n", res.Name, res.Err)
		return 1
	}
	if res.CacheErr != nil {
		fmt.Fprintf(errOut, "warning: cache %s: %v\n", res.Name, res.CacheErr)
	}
	if outPath == "" {
		_, _ = out.Write(res.Payload)
		return 0
	}
	if err := os.WriteFile(outPath, res.Payload, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func fetchRange(ctx context.Context, sh *svs.Shared, remote name.Name, low, high uint64, retries int, outDir string, out io.Writer, errOut io.Writer) int {
	type result struct {
		seq uint64
		out fetch.Outcome
	}
	var results []result
	missing := []svs.MissingData{{NodeID: remote, LowSeq: low, HighSeq: high}}
	err := sh.FetchMissing(ctx, missing, retries, func(_ svs.Name, seq uint64, o fetch.Outcome) {
		results = append(results, result{seq: seq, out: o})
	})
	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			fmt.Fprintf(errOut, "mkdir %s: %v\n", outDir, err)
			return 1
		}
	}

	code := 0
	for _, r := range results {
		if !r.out.Delivered() {
			code = 1
			_, _ = fmt.Fprintf(out, "%d\t%s\t%s\n", r.seq, r.out.Name, r.out.Kind())
			continue
		}
		_, _ = fmt.Fprintf(out, "%d\t%s\tdelivered\t%d\n", r.seq, r.out.Name, len(r.out.Payload))
		if outDir == "" {
			continue
		}
		p := filepath.Join(outDir, strconv.FormatUint(r.seq, 10))
		if err := os.WriteFile(p, r.out.Payload, 0o600); err != nil {
			fmt.Fprintf(errOut, "write %s: %v\n", p, err)
			code = 1
		}
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return code
}

func newClient(cfg *config.Config, store storage.Store, logger *slog.Logger) (transport.Client, func() error, error) {
	if cfg.Transport.Target == "" {
		return local.New(store), nil, nil
	}
	c, err := grpcface.Dial(cfg.Transport.Target, grpcface.DialOptions{
		Timeout:     cfg.DialTimeout(logger),
		MaxMsgBytes: cfg.Transport.MaxMsgBytes,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}
