package inkyfs

import (
	"errors"
	"io/fs"
)

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

type GoFile struct {
	*File
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

func (g GoFile) Read(bytes []byte) (int, error) {
	return g.File.Read(bytes)
}

func (g GoFile) Close() error {
	return g.File.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs just wraps the afero FAT implementation to be compatible with fs.FS.
type GoFs struct {
	*Fs
}

// NewGoFS mounts the FAT filesystem on the given device as an fs.FS
// compatible filesystem.
func NewGoFS(device BlockDevice) (*GoFs, error) {
	fatFs, err := New(device)
	if err != nil {
		return nil, err
	}

	return &GoFs{fatFs}, nil
}

// NewGoFSSkipChecks mounts the volume like NewGoFS but skips some of the
// stricter boot sector validations. Use with caution!
func NewGoFSSkipChecks(device BlockDevice) (*GoFs, error) {
	fatFs, err := NewSkipChecks(device)
	if err != nil {
		return nil, err
	}

	return &GoFs{fatFs}, nil
}

func (g GoFs) Open(name string) (fs.File, error) {
	file, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}

	return GoFile{f}, nil
}
