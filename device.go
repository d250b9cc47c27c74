package inkyfs

import (
	"errors"
	"os"

	"github.com/secfurry/inkyfs/checkpoint"
)

// SectorSize is the only sector size this driver supports. SD cards always
// transfer 512-byte blocks in SPI mode and nearly all FAT volumes use it.
const SectorSize = 512

// These errors may occur while accessing a block device.
var (
	ErrDeviceBounds = errors.New("block index out of range")
	ErrBlockSize    = errors.New("buffer is not exactly one block")
)

// BlockDevice is a fixed 512-byte-sector block transport. Both buffers must
// be exactly SectorSize bytes long.
//
// The device is exclusively owned by the filesystem for its lifetime, no
// locking is done below this interface.
type BlockDevice interface {
	ReadBlock(index uint32, buf []byte) error
	WriteBlock(index uint32, data []byte) error
	Blocks() (uint32, error)
}

// MemDevice is an in-memory BlockDevice. It is mainly useful for tests and
// for building volume images which are written out afterwards.
type MemDevice struct {
	buf []byte
}

// NewMemDevice returns a zeroed in-memory device with the given number of
// 512-byte blocks.
func NewMemDevice(blocks uint32) *MemDevice {
	return &MemDevice{buf: make([]byte, int(blocks)*SectorSize)}
}

func (m *MemDevice) ReadBlock(index uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return checkpoint.From(ErrBlockSize)
	}
	off := int(index) * SectorSize
	if off+SectorSize > len(m.buf) {
		return checkpoint.From(ErrDeviceBounds)
	}
	copy(buf, m.buf[off:off+SectorSize])
	return nil
}

func (m *MemDevice) WriteBlock(index uint32, data []byte) error {
	if len(data) != SectorSize {
		return checkpoint.From(ErrBlockSize)
	}
	off := int(index) * SectorSize
	if off+SectorSize > len(m.buf) {
		return checkpoint.From(ErrDeviceBounds)
	}
	copy(m.buf[off:off+SectorSize], data)
	return nil
}

func (m *MemDevice) Blocks() (uint32, error) {
	return uint32(len(m.buf) / SectorSize), nil
}

// Bytes exposes the raw image, e.g. to write it to a file.
func (m *MemDevice) Bytes() []byte {
	return m.buf
}

// FileDevice is a BlockDevice backed by a volume image file.
type FileDevice struct {
	file *os.File
}

// OpenFileDevice opens the image at path for reading and writing.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	return &FileDevice{file: f}, nil
}

// CreateFileDevice creates (or truncates) an image at path with the given
// number of 512-byte blocks.
func CreateFileDevice(path string, blocks uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if err := f.Truncate(int64(blocks) * SectorSize); err != nil {
		f.Close()
		return nil, checkpoint.From(err)
	}
	return &FileDevice{file: f}, nil
}

func (d *FileDevice) ReadBlock(index uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return checkpoint.From(ErrBlockSize)
	}
	_, err := d.file.ReadAt(buf, int64(index)*SectorSize)
	return checkpoint.Wrap(err, ErrDeviceBounds)
}

func (d *FileDevice) WriteBlock(index uint32, data []byte) error {
	if len(data) != SectorSize {
		return checkpoint.From(ErrBlockSize)
	}
	_, err := d.file.WriteAt(data, int64(index)*SectorSize)
	return checkpoint.Wrap(err, ErrDeviceBounds)
}

func (d *FileDevice) Blocks() (uint32, error) {
	stat, err := d.file.Stat()
	if err != nil {
		return 0, checkpoint.From(err)
	}
	return uint32(stat.Size() / SectorSize), nil
}

func (d *FileDevice) Close() error {
	return d.file.Close()
}
