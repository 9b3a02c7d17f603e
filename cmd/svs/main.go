package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/svs/config"
	"xdao.co/svs/name"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/storeregistry"

	_ "xdao.co/svs/storage/grpcstore"
	_ "xdao.co/svs/storage/ipfs"
	_ "xdao.co/svs/storage/localfs"
	_ "xdao.co/svs/storage/memstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "name":
		return cmdName(args[1:], out, errOut)
	case "fetch":
		return cmdFetch(args[1:], out, errOut)
	case "publish":
		return cmdPublish(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "store":
		return cmdStore(args[1:], out, errOut)
	case "backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "svs: shared-namespace state vector sync data tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  svs name --group <prefix> --node <id> --seq <n> [--cache-others] [--key]")
	fmt.Fprintln(w, "  svs fetch [common flags] --node <id> --seq <n> [--high <n>] [--target <host:port>] [--retries <n>] [--out <file>]")
	fmt.Fprintln(w, "  svs publish [common flags] --node <id> [--seq <n>] <file>")
	fmt.Fprintln(w, "  svs key init|derive|list|export ...")
	fmt.Fprintln(w, "  svs store put|get|has|export|import ...")
	fmt.Fprintln(w, "  svs backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <file>        YAML config (defaults apply when omitted)")
	fmt.Fprintln(w, "  --backend <name>       store backend; overrides the config storage section")
	fmt.Fprintln(w, "  --list-backends        list store backends and exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - names are URIs such as /g/d/n1/epoch-5")
	fmt.Fprintln(w, "  - without --target, fetch answers Interests from the local store only")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type commonFlags struct {
	configPath   string
	backend      string
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (optional)")
	fs.StringVar(&c.backend, "backend", "", "Store backend name (overrides config storage)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	storeregistry.RegisterFlags(fs, storeregistry.UsageCLI)
}

func (c *commonFlags) loadConfig() (*config.Config, error) {
	if c.configPath == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(c.configPath); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return config.LoadConfig(c.configPath)
}

func (c *commonFlags) openStore(cfg *config.Config) (storage.Store, func() error, error) {
	if c.backend != "" {
		return storeregistry.Open(c.backend, storeregistry.UsageCLI)
	}
	return cfg.Storage.Open(storeregistry.UsageCLI, "")
}

// open loads the config and opens the selected store.
func (c *commonFlags) open() (*config.Config, storage.Store, func() error, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	s, closeFn, err := c.openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, s, closeFn, nil
}

func printBackends(w io.Writer) {
	for _, b := range storeregistry.List(storeregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// setFlags returns the names of flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func parseName(flagName, uri string) (name.Name, error) {
	if uri == "" {
		return nil, fmt.Errorf("missing --%s", flagName)
	}
	n, err := name.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flagName, err)
	}
	if len(n) == 0 {
		return nil, fmt.Errorf("invalid --%s: empty name", flagName)
	}
	return n, nil
}

func cmdName(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("name", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var group, node string
	var seq uint64
	var cacheOthers, printKey bool
	fs.StringVar(&group, "group", "", "Group prefix")
	fs.StringVar(&node, "node", "", "Publishing node id")
	fs.Uint64Var(&seq, "seq", 0, "Sequence number")
	fs.BoolVar(&cacheOthers, "cache-others", false, "Shared namespace (node id omitted)")
	fs.BoolVar(&printKey, "key", false, "Also print the storage key (CID) of the name")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: svs name --group <prefix> --node <id> --seq <n> [--cache-others] [--key]")
		return 2
	}
	g, err := parseName("group", group)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	n, err := parseName("node", node)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	dn := name.DataName(g, cacheOthers, n, seq)
	_, _ = fmt.Fprintln(out, dn.String())
	if printKey {
		key, err := dn.Key()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		_, _ = fmt.Fprintln(out, key.String())
	}
	return 0
}
