package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/svs/config"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/bundle"
)

func cmdStore(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printStoreUsage(errOut)
		return 2
	}
	switch args[0] {
	case "put":
		return cmdStorePut(args[1:], out, errOut)
	case "get":
		return cmdStoreGet(args[1:], out, errOut)
	case "has":
		return cmdStoreHas(args[1:], out, errOut)
	case "export":
		return cmdStoreExport(args[1:], out, errOut)
	case "import":
		return cmdStoreImport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printStoreUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown store subcommand: %s\n\n", args[0])
		printStoreUsage(errOut)
		return 2
	}
}

func printStoreUsage(w io.Writer) {
	fmt.Fprintln(w, "svs store: raw packet storage")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  svs store put [common flags] <packet-file>")
	fmt.Fprintln(w, "  svs store get [common flags] --name <uri> [--out <file>]")
	fmt.Fprintln(w, "  svs store has [common flags] --name <uri>")
	fmt.Fprintln(w, "  svs store export [common flags] --name <uri> [--name ...] --out <bundle.tar> [--index]")
	fmt.Fprintln(w, "  svs store import [common flags] [--ignore-unknown] [--validate] <bundle.tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  svs store get --backend localfs --localfs-dir ./repo --name /g/d/n1/epoch-1")
	fmt.Fprintln(w, "  svs store has --backend grpc --grpc-target 127.0.0.1:7443 --name /g/d/epoch-3")
}

func cmdStorePut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: svs store put [common flags] <packet-file>")
		return 2
	}

	p := fs.Arg(0)
	raw, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	d, err := packet.DecodeData(raw)
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v: %v\n", filepath.Base(p), storage.ErrInvalidPacket, err)
		return 1
	}

	_, s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if err := s.Put(d.Name, raw); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, d.Name.String())
	return 0
}

func cmdStoreGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var uri, outPath string
	fs.StringVar(&uri, "name", "", "Packet name")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	n, err := parseName("name", uri)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	_, s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	raw, err := s.Get(n)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = out.Write(raw)
		return 0
	}
	if err := os.WriteFile(outPath, raw, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdStoreHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store has", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var uri string
	fs.StringVar(&uri, "name", "", "Packet name")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	n, err := parseName("name", uri)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	_, s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	_, _ = fmt.Fprintln(out, s.Has(n))
	return 0
}

func cmdStoreExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var uris stringList
	var outPath string
	var includeIndex bool
	fs.Var(&uris, "name", "Packet name (repeatable)")
	fs.StringVar(&outPath, "out", "", "Bundle file")
	fs.BoolVar(&includeIndex, "index", false, "Include index.json")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if len(uris) == 0 {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}
	names := make([]name.Name, 0, len(uris))
	for _, u := range uris {
		n, err := parseName("name", u)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		names = append(names, n)
	}

	_, s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, s, names, bundle.ExportOptions{IncludeIndex: includeIndex}); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdStoreImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("store import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var ignoreUnknown, validate bool
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip entries that are not packets")
	fs.BoolVar(&validate, "validate", false, "Check every packet with the configured validator first")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: svs store import [common flags] <bundle.tar>")
		return 2
	}

	cfg, s, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	opts := bundle.ImportOptions{IgnoreUnknown: ignoreUnknown}
	if validate {
		vcfg := *cfg
		vcfg.Security.Signer = config.SignerConfig{}
		sec, err := vcfg.SecurityOptions(nil)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		opts.Validator = sec.Validator
	}

	p := fs.Arg(0)
	f, err := os.Open(p)
	if err != nil {
		fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(p), err)
		return 1
	}
	defer f.Close()

	names, err := bundle.ImportWithOptions(context.Background(), f, s, opts)
	for _, n := range names {
		_, _ = fmt.Fprintln(out, n.String())
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
