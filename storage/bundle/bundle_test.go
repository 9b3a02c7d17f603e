package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"xdao.co/svs/name"
	"xdao.co/svs/security"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/bundle"
	"xdao.co/svs/storage/localfs"
	"xdao.co/svs/storage/memstore"
	"xdao.co/svs/storage/testkit"
)

func TestBundle_ExportIsDeterministic(t *testing.T) {
	s, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n1, raw1 := testkit.Packet(t, "/g/d/n1/epoch-1", "hello")
	n2, raw2 := testkit.Packet(t, "/g/d/n1/epoch-2", "world")
	if err := s.Put(n1, raw1); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(n2, raw2); err != nil {
		t.Fatal(err)
	}

	var outA bytes.Buffer
	if err := bundle.Export(&outA, s, []name.Name{n2, n1}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(&outB, s, []name.Name{n1, n2, n1}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := memstore.New()
	n, raw := testkit.Packet(t, "/g/d/epoch-9", "payload")
	if err := src.Put(n, raw); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []name.Name{n}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	names, err := bundle.ImportWithOptions(context.Background(), bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{Validator: security.DigestValidator{}})
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || !names[0].Equal(n) {
		t.Fatalf("imported %v", names)
	}

	got, err := dst.Get(n)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ExportMissingName(t *testing.T) {
	var buf bytes.Buffer
	err := bundle.Export(&buf, memstore.New(), []name.Name{name.MustParse("/g/d/epoch-1")}, bundle.ExportOptions{})
	if !storage.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundle_ImportRejectsKeyMismatch(t *testing.T) {
	_, raw := testkit.Packet(t, "/g/d/epoch-1", "good")
	other, err := name.MustParse("/g/d/epoch-2").Key()
	if err != nil {
		t.Fatal(err)
	}

	// Entry says epoch-2 but the packet is named epoch-1.
	bundleBytes := makeDeterministicTar(t, "packets/"+other.String(), raw)

	dst := memstore.New()
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), dst); !errors.Is(err, bundle.ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("nothing may be stored from a bad bundle")
	}
}

func TestBundle_ImportFailClosed(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "extras/readme.txt", []byte("hi"))
	if _, err := bundle.Import(bytes.NewReader(bundleBytes), memstore.New()); err == nil || !strings.Contains(err.Error(), "unknown entry") {
		t.Fatalf("expected unknown entry error, got %v", err)
	}
	names, err := bundle.ImportWithOptions(context.Background(), bytes.NewReader(bundleBytes), memstore.New(), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil || len(names) != 0 {
		t.Fatalf("IgnoreUnknown: names=%v err=%v", names, err)
	}

	bad := makeDeterministicTar(t, "packets/../escape", []byte("x"))
	if _, err := bundle.Import(bytes.NewReader(bad), memstore.New()); err == nil {
		t.Fatalf("expected path error")
	}
}

func TestBundle_ImportValidatorRejects(t *testing.T) {
	src := memstore.New()
	n, raw := testkit.Packet(t, "/g/d/epoch-3", "digest signed")
	if err := src.Put(n, raw); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := bundle.Export(&buf, src, []name.Name{n}, bundle.ExportOptions{}); err != nil {
		t.Fatal(err)
	}

	trust := security.NewTrustValidator(name.MustParse("/g"))
	dst := memstore.New()
	_, err := bundle.ImportWithOptions(context.Background(), &buf, dst, bundle.ImportOptions{Validator: trust})
	if !errors.Is(err, security.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("rejected packet stored")
	}
}

func makeDeterministicTar(t *testing.T, path string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     path,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
