package memstore

import (
	"flag"

	"xdao.co/svs/storage"
	"xdao.co/svs/storage/storeregistry"
)

func init() {
	storeregistry.MustRegister(storeregistry.Backend{
		Name:          "mem",
		Description:   "In-memory packet store (lost on exit)",
		Usage:         storeregistry.UsageCLI | storeregistry.UsageDaemon,
		RegisterFlags: func(*flag.FlagSet) {},
		Open: func() (storage.Store, func() error, error) {
			return New(), nil, nil
		},
		OpenConfig: func(map[string]string) (storage.Store, func() error, error) {
			return New(), nil, nil
		},
	})
}
