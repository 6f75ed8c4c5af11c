package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const fileSuffix = ".model.lz4"

// FileStore keeps one snapshot file per workload in Dir. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// reader sees either the previous snapshot or the new one.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStoreUnavailable, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds the workload's snapshot.
func (f *FileStore) Path(workload string) string {
	return filepath.Join(f.dir, workload+fileSuffix)
}

func (f *FileStore) Put(ctx context.Context, s Snapshot) error {
	if err := validateWorkload(s.Workload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeSnapshot(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+s.Workload+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, f.Path(s.Workload)); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetLatest returns found=false with a nil error when no file exists yet.
func (f *FileStore) GetLatest(ctx context.Context, workload string) (Snapshot, bool, error) {
	if err := validateWorkload(workload); err != nil {
		return Snapshot{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	data, err := os.ReadFile(f.Path(workload))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("%w: read: %v", ErrStoreUnavailable, err)
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return s, true, nil
}
