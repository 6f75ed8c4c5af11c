package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_WritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	for v := int64(1); v <= 3; v++ {
		if err := s.Put(context.Background(), testSnapshot("api", v)); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected a single snapshot file, got %v", names)
	}
	if entries[0].Name() != "api"+fileSuffix {
		t.Errorf("file name = %s", entries[0].Name())
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := os.WriteFile(s.Path("api"), []byte("garbage payload"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, found, err := s.GetLatest(context.Background(), "api")
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("GetLatest() error = %v, want ErrCorrupt", err)
	}
	if found {
		t.Error("found = true for corrupt file")
	}
}

func TestFileStore_UnavailableDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "models"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "models")); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	err = s.Put(context.Background(), testSnapshot("api", 1))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Put() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestNewFileStore_Errors(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Fatal("expected error for empty dir")
	}

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := NewFileStore(file)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("NewFileStore() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestCodec(t *testing.T) {
	want := testSnapshot("api", 7)
	data, err := encodeSnapshot(want)
	if err != nil {
		t.Fatalf("encodeSnapshot() error = %v", err)
	}
	if data[1] != flagLZ4 {
		t.Errorf("repetitive state should compress, flag = %d", data[1])
	}
	got, err := decodeSnapshot(data)
	if err != nil {
		t.Fatalf("decodeSnapshot() error = %v", err)
	}
	assertSnapshotEqual(t, got, want)

	small := Snapshot{Workload: "x"}
	data, err = encodeSnapshot(small)
	if err != nil {
		t.Fatalf("encodeSnapshot() error = %v", err)
	}
	if got, err := decodeSnapshot(data); err != nil || got.Workload != "x" {
		t.Fatalf("decodeSnapshot(small) = %+v, %v", got, err)
	}
}

func TestCodec_Corrupt(t *testing.T) {
	good, err := encodeSnapshot(testSnapshot("api", 1))
	if err != nil {
		t.Fatalf("encodeSnapshot() error = %v", err)
	}

	truncated := good[:len(good)-5]
	badVersion := append([]byte{9}, good[1:]...)
	badFlag := append([]byte{good[0], 7}, good[2:]...)
	hugeLen := append([]byte(nil), good...)
	hugeLen[5] = 0xff

	tests := map[string][]byte{
		"empty":       nil,
		"short":       {1, 1, 0},
		"truncated":   truncated,
		"bad version": badVersion,
		"bad flag":    badFlag,
		"huge length": hugeLen,
		"raw not json": append([]byte{codecVersion, flagRaw, 3, 0, 0, 0}, []byte("abc")...),
	}
	for name, data := range tests {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			if _, err := decodeSnapshot(data); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("decodeSnapshot() error = %v, want ErrCorrupt", err)
			}
		})
	}
}
