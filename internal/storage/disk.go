package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// DiskStore keeps blobs as files in a single directory.
type DiskStore struct {
	fs afero.Fs
}

// NewDiskStore roots a store at dir on the local filesystem, creating the
// directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return NewFsStore(afero.NewBasePathFs(osFs, dir)), nil
}

// NewFsStore wraps an arbitrary afero filesystem. Tests use afero.NewMemMapFs.
func NewFsStore(fsys afero.Fs) *DiskStore {
	return &DiskStore{fs: fsys}
}

// Put writes data under name. The file is created exclusively so an
// existing blob is never replaced; a partially written file is removed.
func (s *DiskStore) Put(_ context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrBlobExists
		}
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(name)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(name)
		return err
	}
	return nil
}

// Open returns a reader over the blob stored under name.
func (s *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, ErrBlobNotFound
	}
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the blob stored under name.
func (s *DiskStore) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return ErrBlobNotFound
	}
	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrBlobNotFound
		}
		return err
	}
	return nil
}
