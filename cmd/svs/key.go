package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"xdao.co/svs/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "svs key: local ed25519 key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  svs key init --name <name> [--seed-hex <64hex>] [--force] [--key-dir <dir>]")
	fmt.Fprintln(w, "  svs key derive --from <name> --node <id> [--force] [--key-dir <dir>]")
	fmt.Fprintln(w, "  svs key list [--key-dir <dir>]")
	fmt.Fprintln(w, "  svs key export --name <name> [--node <id>] [--key-dir <dir>]")
}

func addKeyDir(fs *flag.FlagSet, dir *string) {
	fs.StringVar(dir, "key-dir", "", "Key store directory (default ~/.xdao/svs/keys)")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var keyName, seedHex, keyDir string
	var force bool
	fs.StringVar(&keyName, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	addKeyDir(fs, &keyDir)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if keyName == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(keyName); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		var derr error
		seed, derr = keys.ParseSeedHex(seedHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", derr)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	pub, rootPath, err := ks.InitializeRootKey(keyName, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from, node, keyDir string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&node, "node", "", "Node id the derived key signs for")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")
	addKeyDir(fs, &keyDir)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	nodeID, err := parseName("node", node)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	signer, nodePath, err := ks.DeriveNodeKey(from, nodeID, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive node key: %v\n", err)
		return 1
	}
	pub, err := keys.EncodeEd25519(signer.PublicKey().Ed25519)
	if err != nil {
		fmt.Fprintf(errOut, "encode key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Key name: %s\n", signer.KeyName)
	fmt.Fprintf(out, "Public key: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", nodePath)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var keyName, node, keyDir string
	fs.StringVar(&keyName, "name", "", "Key name")
	fs.StringVar(&node, "node", "", "Optional node id (if set, exports the derived node key)")
	addKeyDir(fs, &keyDir)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if keyName == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(keyName); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	var pub string
	if node != "" {
		n, perr := parseName("node", node)
		if perr != nil {
			fmt.Fprintln(errOut, perr)
			return 2
		}
		pub, err = ks.ExportKey(keyName, n)
	} else {
		pub, err = ks.ExportKey(keyName, nil)
	}
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, pub)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var keyDir string
	addKeyDir(fs, &keyDir)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := keys.CreateKeyStore(keyDir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, n := range e.Nodes {
			fmt.Fprintf(out, "  - %s\n", n)
		}
	}
	return 0
}
