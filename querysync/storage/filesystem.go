package storage

import (
	"bytes"
	"io/fs"
	"os"

	"github.com/natefinch/atomic"
)

// FileSystem is the set of file operations the JSON backend needs. It exists
// so tests can swap in MockFileSystem.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	// WriteFileAtomic replaces name with data so that readers never observe
	// a partially written file
	WriteFileAtomic(name string, data []byte) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error
}

// OSFileSystem is the FileSystem backed by the os package
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFileSystem) WriteFileAtomic(name string, data []byte) error {
	return atomic.WriteFile(name, bytes.NewReader(data))
}

func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}
