package inkyfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"

	"github.com/secfurry/inkyfs/checkpoint"
)

// These errors may occur while processing a file.
var (
	ErrOpenFile   = errors.New("could not open the file")
	ErrReadFile   = errors.New("could not read file completely")
	ErrWriteFile  = errors.New("could not write the file")
	ErrSeekFile   = errors.New("could not seek inside of the file")
	ErrReadDir    = errors.New("could not read the directory")
	ErrFileClosed = errors.New("file handle is closed")
)

// fatFileFs provides all methods needed from a fat filesystem for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//  mockgen -source=file.go -destination=file_mock.go -package inkyfs
type fatFileFs interface {
	readFileAt(cluster fatEntry, fileSize int64, offset int64, readSize int64) ([]byte, error)
	writeFileAt(cluster fatEntry, fileSize int64, offset int64, p []byte) (fatEntry, int64, int, error)
	truncateChain(cluster fatEntry, size int64) (fatEntry, error)
	flushEntry(location entryLocation, header EntryHeader) error
	readRoot() ([]ExtendedEntryHeader, error)
	readDir(cluster fatEntry) ([]ExtendedEntryHeader, error)
	sync() error
}

type File struct {
	fs   fatFileFs
	path string

	isDirectory bool
	isReadOnly  bool
	isHidden    bool
	isSystem    bool
	writable    bool
	appendMode  bool

	firstCluster fatEntry
	header       EntryHeader
	longName     string
	location     entryLocation
	offset       int64
	dirty        bool
	closed       bool
}

func (f *File) size() int64 {
	return int64(f.header.FileSize)
}

// Close flushes pending metadata and releases the handle. Closing an
// already closed handle is a no-op, every other operation on it fails with
// ErrFileClosed.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	if f.dirty {
		now := timeNow()
		f.header.WriteDate, f.header.WriteTime = toDate(now), toTime(now)
		f.header.LastAccessDate = f.header.WriteDate
		if err := f.fs.flushEntry(f.location, f.header); err != nil {
			return checkpoint.Wrap(err, ErrWriteFile)
		}
		f.dirty = false
	}
	err := f.fs.sync()
	f.closed = true
	f.fs = nil
	if err != nil {
		return checkpoint.Wrap(err, ErrWriteFile)
	}
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if f.closed {
		return 0, checkpoint.From(ErrFileClosed)
	}
	if p == nil {
		return 0, nil
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.size() <= f.offset {
		return 0, io.EOF
	}

	offset := f.offset
	data, err := f.fs.readFileAt(f.firstCluster, f.size(), offset, int64(len(p)))

	if data != nil {
		copy(p, data)
	}

	// Seek even if an error occurred, errors from reading are used even if seek also errors.
	_, seekErr := f.Seek(int64(len(data)), io.SeekCurrent)

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}

	if seekErr != nil {
		return len(data), checkpoint.Wrap(seekErr, ErrReadFile)
	}

	return len(data), nil
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if f.closed {
		return 0, checkpoint.From(ErrFileClosed)
	}
	if p == nil {
		return 0, nil
	}

	// Reading over the end makes no sense.
	if f.size() <= off {
		return 0, io.EOF
	}

	size := len(p)
	data, err := f.fs.readFileAt(f.firstCluster, f.size(), off, int64(size))

	if data != nil {
		copy(p, data)
	}

	if err != nil {
		return len(data), checkpoint.Wrap(err, ErrReadFile)
	}

	if len(data) < size {
		return len(data), checkpoint.Wrap(io.EOF, ErrReadFile)
	}
	return len(data), nil
}

// Seek jumps to a specific offset in the file. This affects all Read and
// Write operations except ReadAt and WriteAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, checkpoint.From(ErrFileClosed)
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	if f.closed {
		return 0, checkpoint.From(ErrFileClosed)
	}
	if !f.writable {
		return 0, checkpoint.Wrap(os.ErrPermission, ErrWriteFile)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.appendMode {
		f.offset = f.size()
	}

	n, err = f.writeAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	if f.closed {
		return 0, checkpoint.From(ErrFileClosed)
	}
	if !f.writable {
		return 0, checkpoint.Wrap(os.ErrPermission, ErrWriteFile)
	}
	if off < 0 {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, ErrWriteFile)
	}
	return f.writeAt(p, off)
}

// writeAt pushes p into the cluster chain and keeps the cached entry
// metadata in step with the chain. A failed write leaves chain and size in
// an unknown state, the caller has to reopen the file.
func (f *File) writeAt(p []byte, off int64) (int, error) {
	first, newSize, n, err := f.fs.writeFileAt(f.firstCluster, f.size(), off, p)
	if first != f.firstCluster || newSize != f.size() {
		f.firstCluster = first
		f.header.setFirstCluster(first)
		f.header.FileSize = uint32(newSize)
		f.dirty = true
	}
	if err != nil {
		return n, checkpoint.Wrap(err, ErrWriteFile)
	}
	f.dirty = true
	return n, nil
}

func (f *File) Name() string {
	if f.path == "/" {
		return "/"
	}
	if f.longName != "" {
		return f.longName
	}
	return displayShortName(f.header.Name)
}

// Readdir reads the contents of a directory.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if f.closed {
		return nil, checkpoint.From(ErrFileClosed)
	}
	if !f.isDirectory {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	var content []ExtendedEntryHeader
	var err error
	if f.path == "/" {
		content, err = f.fs.readRoot()
	} else {
		content, err = f.fs.readDir(f.firstCluster)
	}

	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	end := len(content)

	if int64(len(content)) < f.offset+int64(count) {
		count = len(content) - int(f.offset)
		err = io.EOF
	}

	if count >= 0 {
		end = int(f.offset) + count
	}

	content = content[f.offset:end]

	if count > 0 {
		f.offset += int64(count)
	} else if count < 0 {
		f.offset = int64(end)
	}

	result := make([]os.FileInfo, len(content))
	for i := range content {
		result[i] = content[i].FileInfo()
	}

	return result, err
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.closed {
		return nil, checkpoint.From(ErrFileClosed)
	}
	entry := ExtendedEntryHeader{EntryHeader: f.header, ExtendedName: f.longName}
	if f.path == "/" {
		// The root has no on-disk entry to take a name from.
		entry.ExtendedName = "/"
	}
	return entry.FileInfo(), nil
}

// Sync flushes the entry metadata and all cached sectors to the device.
func (f *File) Sync() error {
	if f.closed {
		return checkpoint.From(ErrFileClosed)
	}
	if f.dirty {
		now := timeNow()
		f.header.WriteDate, f.header.WriteTime = toDate(now), toTime(now)
		f.header.LastAccessDate = f.header.WriteDate
		if err := f.fs.flushEntry(f.location, f.header); err != nil {
			return checkpoint.Wrap(err, ErrWriteFile)
		}
		f.dirty = false
	}
	if err := f.fs.sync(); err != nil {
		return checkpoint.Wrap(err, ErrWriteFile)
	}
	return nil
}

// Truncate resizes the file to the given size, releasing clusters the file
// no longer needs. Growing a file with Truncate is not supported.
func (f *File) Truncate(size int64) error {
	if f.closed {
		return checkpoint.From(ErrFileClosed)
	}
	if !f.writable {
		return checkpoint.Wrap(os.ErrPermission, ErrWriteFile)
	}
	if size < 0 {
		return checkpoint.Wrap(afero.ErrOutOfRange, ErrWriteFile)
	}
	if size >= f.size() {
		return nil
	}
	head, err := f.fs.truncateChain(f.firstCluster, size)
	if err != nil {
		return checkpoint.Wrap(err, ErrWriteFile)
	}
	f.firstCluster = head
	f.header.setFirstCluster(head)
	f.header.FileSize = uint32(size)
	f.dirty = true
	if f.offset > size {
		f.offset = size
	}
	return nil
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
