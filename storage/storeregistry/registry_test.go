package storeregistry

import (
	"flag"
	"strings"
	"testing"

	"xdao.co/svs/storage"
)

func testBackend(name string, usage Usage, dir *string) Backend {
	return Backend{
		Name:  name,
		Usage: usage,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(dir, name+"-dir", "", "test dir")
		},
		Open: func() (storage.Store, func() error, error) {
			return storage.MultiStore{}, nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.Store, func() error, error) {
			*dir = cfg[name+"-dir"]
			return storage.MultiStore{}, nil, nil
		},
	}
}

func TestRegister_RejectsIncompleteBackends(t *testing.T) {
	var dir string
	b := testBackend("", UsageCLI, &dir)
	if err := Register(b); err == nil {
		t.Fatalf("expected error for empty name")
	}
	b = testBackend("incomplete-test", UsageCLI, &dir)
	b.OpenConfig = nil
	if err := Register(b); err == nil {
		t.Fatalf("expected error for missing OpenConfig")
	}
	b = testBackend("nousage-test", 0, &dir)
	if err := Register(b); err == nil {
		t.Fatalf("expected error for missing usage")
	}
}

func TestRegister_DuplicateAndUsageFiltering(t *testing.T) {
	var cliDir, daemonDir string
	MustRegister(testBackend("zz-cli-test", UsageCLI, &cliDir))
	MustRegister(testBackend("zz-daemon-test", UsageDaemon, &daemonDir))

	if err := Register(testBackend("zz-cli-test", UsageCLI, &cliDir)); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	cli := strings.Join(Names(UsageCLI), ",")
	if !strings.Contains(cli, "zz-cli-test") || strings.Contains(cli, "zz-daemon-test") {
		t.Fatalf("CLI names = %q", cli)
	}

	if _, _, err := Open("zz-daemon-test", UsageCLI); err == nil {
		t.Fatalf("expected daemon-only backend to be rejected for CLI")
	}
	if _, _, err := Open("does-not-exist", UsageCLI); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, UsageDaemon)
	if fs.Lookup("zz-daemon-test-dir") == nil {
		t.Fatalf("daemon flag not registered")
	}
	if fs.Lookup("zz-cli-test-dir") != nil {
		t.Fatalf("CLI flag registered for daemon usage")
	}

	s, _, err := OpenWithConfig("zz-daemon-test", UsageDaemon, map[string]string{"zz-daemon-test-dir": "/tmp/x"})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if _, ok := s.(storage.MultiStore); !ok || daemonDir != "/tmp/x" {
		t.Fatalf("OpenWithConfig did not pass settings through: dir=%q", daemonDir)
	}
}
