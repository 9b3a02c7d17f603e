package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/svs/config"
	"xdao.co/svs/name"
	"xdao.co/svs/storage"
	"xdao.co/svs/svs"
)

func cmdPublish(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var group, node, freshness string
	var seq uint64
	var cacheOthers bool
	fs.StringVar(&group, "group", "", "Group prefix (overrides config group_prefix)")
	fs.StringVar(&node, "node", "", "Local node id (overrides config node_id)")
	fs.Uint64Var(&seq, "seq", 0, "Sequence number (default: first unused in the store)")
	fs.BoolVar(&cacheOthers, "cache-others", false, "Shared namespace (overrides config)")
	fs.StringVar(&freshness, "freshness", "", "Freshness period written into the packet, e.g. 1s")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: svs publish [common flags] --node <id> [--seq <n>] <file>")
		return 2
	}
	set := setFlags(fs)
	if set["seq"] && seq == 0 {
		fmt.Fprintln(errOut, "invalid --seq: sequence numbers start at 1")
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
	if set["node"] {
		cfg.NodeID = node
	}
	if set["cache-others"] {
		cfg.CacheOthers = cacheOthers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(errOut, "invalid configuration: %v\n", err)
		return 1
	}
	nodeID, err := cfg.Node()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	g, err := cfg.Group()
	if err != nil {
		fmt.Fprintln(errOut, err)
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
	sec, err := cfg.SecurityOptions(nodeID)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	p := fs.Arg(0)
	content, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	if len(content) == 0 {
		fmt.Fprintln(errOut, "refusing to publish empty content: fetchers treat it as absent")
		return 1
	}

	store, closeStore, err := common.openStore(cfg)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeStore != nil {
		defer closeStore()
	}

	if !set["seq"] {
		seq = nextFreeSeq(store, g, cfg.CacheOthers, nodeID)
	}

	sh, err := svs.NewShared(svs.Config{
		GroupPrefix: g,
		NodeID:      nodeID,
		CacheOthers: cfg.CacheOthers,
		Core:        svs.NewStaticCore(seq - 1),
		Security:    sec,
		Store:       store,
		Freshness:   config.ParseDuration(freshness, 0, logger),
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	got, n, err := sh.PublishData(content)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%d\t%s\n", got, n)
	return 0
}

// nextFreeSeq returns the first sequence number with no packet in s.
func nextFreeSeq(s storage.Store, group name.Name, cacheOthers bool, nodeID name.Name) uint64 {
	seq := uint64(1)
	for s.Has(name.DataName(group, cacheOthers, nodeID, seq)) {
		seq++
	}
	return seq
}
