package ipfs

import (
	"flag"
	"os"

	"xdao.co/svs/storage"
	"xdao.co/svs/storage/storeregistry"
)

var (
	flagBin  string
	flagPath string
	flagRoot string
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:        "ipfs",
		Description: "IPFS MFS packet store via the local Kubo 'ipfs' CLI",
		Usage:       storeregistry.UsageCLI | storeregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS repo path, sets IPFS_PATH (for --backend=ipfs)")
			fs.StringVar(&flagRoot, "ipfs-root", DefaultRoot, "MFS directory for packets (for --backend=ipfs)")
		},
		Open: func() (storage.Store, func() error, error) {
			return open(flagBin, flagPath, flagRoot)
		},
		OpenConfig: func(cfg map[string]string) (storage.Store, func() error, error) {
			return open(cfg["ipfs-bin"], cfg["ipfs-path"], cfg["ipfs-root"])
		},
	})
}

func open(bin, repoPath, root string) (storage.Store, func() error, error) {
	var env []string
	if repoPath != "" {
		env = append(os.Environ(), "IPFS_PATH="+repoPath)
	}
	return New(Options{Bin: bin, Env: env, Root: root}), nil, nil
}
