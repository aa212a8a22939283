package client

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileHandle is the source of an upload: a declared name, a total length and
// random access to its bytes.
type FileHandle interface {
	io.ReaderAt
	Name() string
	Size() int64
}

// LocalFile is a FileHandle backed by a file on disk.
type LocalFile struct {
	f    *os.File
	name string
	size int64
}

// OpenFile opens path for upload. The declared name is the path's base name.
func OpenFile(path string) (*LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &LocalFile{f: f, name: filepath.Base(path), size: info.Size()}, nil
}

func (l *LocalFile) ReadAt(p []byte, off int64) (int, error) {
	return l.f.ReadAt(p, off)
}

func (l *LocalFile) Name() string { return l.name }
func (l *LocalFile) Size() int64  { return l.size }

func (l *LocalFile) Close() error {
	return l.f.Close()
}

// MemoryFile is a FileHandle over an in-memory payload.
type MemoryFile struct {
	*bytes.Reader
	name string
}

func NewMemoryFile(name string, data []byte) *MemoryFile {
	return &MemoryFile{Reader: bytes.NewReader(data), name: name}
}

func (m *MemoryFile) Name() string { return m.name }
