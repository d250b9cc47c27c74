// Package inkyfs implements a FAT16/FAT32 filesystem on top of a block
// device, exposed through the afero.Fs interface. It is written for small
// targets: all device access goes through two single-sector cache windows,
// one for data and directory sectors and one for the FAT, so memory use
// stays constant regardless of volume size.
package inkyfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/secfurry/inkyfs/checkpoint"
)

// These errors may occur while mounting or using a volume.
var (
	ErrUnsupportedVolume = errors.New("unsupported or invalid volume")
	ErrNotSupported      = errors.New("operation not supported")
)

// FATType is the type of a FAT filesystem.
type FATType uint8

// All possible FATTypes. FAT12 volumes are recognized but rejected.
const (
	FAT12 FATType = iota
	FAT16
	FAT32
)

func (t FATType) String() string {
	switch t {
	case FAT12:
		return "FAT12"
	case FAT16:
		return "FAT16"
	case FAT32:
		return "FAT32"
	}
	return "unknown"
}

// Flags contains the states of a Sector.
type Flags struct {
	Dirty bool
}

// Sector is a single-sector cache window over the device.
type Sector struct {
	current uint32
	flags   Flags
	buffer  []byte
}

// Info contains the parsed volume geometry.
type Info struct {
	FSType            FATType
	SectorsPerCluster uint8
	NumFATs           uint8
	ReservedSectors   uint16
	RootEntryCount    uint16
	SectorsPerFAT     uint32
	TotalSectors      uint32
	FirstDataSector   uint32
	RootDirSectors    uint32
	ClusterCount      uint32
	RootCluster       fatEntry
	FSInfoSector      uint32
	Label             string
}

// Fs is a FAT16/FAT32 filesystem implementing afero.Fs. Use New to mount
// one from a BlockDevice.
type Fs struct {
	lock          sync.Mutex
	device        BlockDevice
	info          Info
	sectorCache   Sector
	fatCache      Sector
	memo          chainMemo
	allocCursor   fatEntry
	lastAllocated fatEntry
	freeCount     uint32
	fsInfoDirty   bool
}

// New mounts the FAT16/FAT32 volume on the given device.
func New(device BlockDevice) (*Fs, error) {
	return newFs(device, false)
}

// NewSkipChecks mounts the volume like New but skips some of the stricter
// boot sector validations. Use it for volumes written by exotic formatters.
func NewSkipChecks(device BlockDevice) (*Fs, error) {
	return newFs(device, true)
}

func newFs(device BlockDevice, skipChecks bool) (*Fs, error) {
	fs := &Fs{
		device:      device,
		freeCount:   unknownFree,
		allocCursor: 2,
	}
	fs.sectorCache = Sector{current: noSector, buffer: make([]byte, SectorSize)}
	fs.fatCache = Sector{current: noSector, buffer: make([]byte, SectorSize)}
	if err := fs.initialize(skipChecks); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Fs) initialize(skipChecks bool) error {
	if err := fs.fetch(0); err != nil {
		return checkpoint.Wrap(err, ErrUnsupportedVolume)
	}
	buf := fs.sectorCache.buffer
	if buf[510] != 0x55 || buf[511] != 0xAA {
		return checkpoint.From(ErrUnsupportedVolume)
	}

	var bpb BPB
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &bpb); err != nil {
		return checkpoint.Wrap(err, ErrUnsupportedVolume)
	}
	if !skipChecks {
		if bpb.BSJumpBoot[0] != 0xEB && bpb.BSJumpBoot[0] != 0xE9 {
			return checkpoint.From(ErrUnsupportedVolume)
		}
		if bpb.Media != 0xF0 && bpb.Media < 0xF8 {
			return checkpoint.From(ErrUnsupportedVolume)
		}
	}
	if bpb.BytesPerSector != SectorSize {
		return checkpoint.From(ErrUnsupportedVolume)
	}
	spc := bpb.SectorsPerCluster
	if spc == 0 || spc&(spc-1) != 0 || uint32(spc)*SectorSize > 32*1024 {
		return checkpoint.From(ErrUnsupportedVolume)
	}
	if bpb.ReservedSectorCount == 0 || bpb.NumFATs == 0 {
		return checkpoint.From(ErrUnsupportedVolume)
	}

	totalSectors := uint32(bpb.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = bpb.TotalSectors32
	}
	fatSize := uint32(bpb.FATSize16)
	var fat32 FAT32SpecificData
	if fatSize == 0 {
		if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &fat32); err != nil {
			return checkpoint.Wrap(err, ErrUnsupportedVolume)
		}
		fatSize = fat32.FatSize
	}
	if totalSectors == 0 || fatSize == 0 {
		return checkpoint.From(ErrUnsupportedVolume)
	}

	rootDirSectors := (uint32(bpb.RootEntryCount)*32 + SectorSize - 1) / SectorSize
	firstDataSector := uint32(bpb.ReservedSectorCount) + uint32(bpb.NumFATs)*fatSize + rootDirSectors
	if firstDataSector >= totalSectors {
		return checkpoint.From(ErrUnsupportedVolume)
	}
	clusterCount := (totalSectors - firstDataSector) / uint32(spc)

	fs.info = Info{
		SectorsPerCluster: spc,
		NumFATs:           bpb.NumFATs,
		ReservedSectors:   bpb.ReservedSectorCount,
		RootEntryCount:    bpb.RootEntryCount,
		SectorsPerFAT:     fatSize,
		TotalSectors:      totalSectors,
		FirstDataSector:   firstDataSector,
		RootDirSectors:    rootDirSectors,
		ClusterCount:      clusterCount,
	}

	switch {
	case clusterCount < 4085:
		// FAT12 needs 12-bit entry packing which is not worth carrying.
		return checkpoint.From(ErrUnsupportedVolume)
	case clusterCount < 65525:
		fs.info.FSType = FAT16
		var fat16 FAT16SpecificData
		if err := binary.Read(bytes.NewReader(bpb.FATSpecificData[:]), binary.LittleEndian, &fat16); err != nil {
			return checkpoint.Wrap(err, ErrUnsupportedVolume)
		}
		if bpb.RootEntryCount == 0 {
			return checkpoint.From(ErrUnsupportedVolume)
		}
		if fat16.BSBootSignature == 0x29 {
			fs.info.Label = strings.TrimRight(string(fat16.BSVolumeLabel[:]), " ")
		}
	default:
		fs.info.FSType = FAT32
		if bpb.FATSize16 != 0 {
			// FAT32 geometry but a FAT16 size field is set, refuse to guess.
			return checkpoint.From(ErrUnsupportedVolume)
		}
		if fat32.FSVersion != 0 {
			return checkpoint.From(ErrUnsupportedVolume)
		}
		if !fat32.RootCluster.IsNextCluster() {
			return checkpoint.From(ErrUnsupportedVolume)
		}
		fs.info.RootCluster = fat32.RootCluster
		fs.info.FSInfoSector = uint32(fat32.FSInfo)
		if fat32.BSBootSignature == 0x29 {
			fs.info.Label = strings.TrimRight(string(fat32.BSVolumeLabel[:]), " ")
		}
		if err := fs.readFSInfo(); err != nil {
			return err
		}
	}
	return nil
}

// FSInfo sector layout.
const (
	fsInfoLeadSig   = 0x41615252
	fsInfoStructSig = 0x61417272
	fsInfoTrailSig  = 0xAA550000
)

// readFSInfo picks up the free-count and next-free hints of a FAT32 volume.
// Invalid hints are ignored, they are only an optimization.
func (fs *Fs) readFSInfo() error {
	if fs.info.FSInfoSector == 0 || fs.info.FSInfoSector == 0xFFFF {
		return nil
	}
	if err := fs.fetch(fs.info.FSInfoSector); err != nil {
		return err
	}
	buf := fs.sectorCache.buffer
	if binary.LittleEndian.Uint32(buf[0:]) != fsInfoLeadSig ||
		binary.LittleEndian.Uint32(buf[484:]) != fsInfoStructSig ||
		binary.LittleEndian.Uint32(buf[508:]) != fsInfoTrailSig {
		return nil
	}
	if free := binary.LittleEndian.Uint32(buf[488:]); free <= fs.info.ClusterCount {
		fs.freeCount = free
	}
	if next := fatEntry(binary.LittleEndian.Uint32(buf[492:])); next.IsNextCluster() && uint32(next) < fs.info.ClusterCount+2 {
		fs.allocCursor = next
	}
	return nil
}

// writeFSInfo pushes updated allocation hints back to the FSInfo sector.
func (fs *Fs) writeFSInfo() error {
	if fs.info.FSType != FAT32 || !fs.fsInfoDirty {
		return nil
	}
	if fs.info.FSInfoSector == 0 || fs.info.FSInfoSector == 0xFFFF {
		fs.fsInfoDirty = false
		return nil
	}
	if err := fs.fetch(fs.info.FSInfoSector); err != nil {
		return err
	}
	buf := fs.sectorCache.buffer
	binary.LittleEndian.PutUint32(buf[0:], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(buf[484:], fsInfoStructSig)
	binary.LittleEndian.PutUint32(buf[488:], fs.freeCount)
	binary.LittleEndian.PutUint32(buf[492:], uint32(fs.lastAllocated))
	binary.LittleEndian.PutUint32(buf[508:], fsInfoTrailSig)
	fs.sectorCache.flags.Dirty = true
	fs.fsInfoDirty = false
	return nil
}

// fetch loads the given sector into the data cache window. A dirty window
// is written back before it is replaced.
func (fs *Fs) fetch(sector uint32) error {
	if sector == fs.sectorCache.current {
		return nil
	}
	if fs.sectorCache.flags.Dirty {
		if err := fs.store(); err != nil {
			return err
		}
	}
	if err := fs.device.ReadBlock(sector, fs.sectorCache.buffer); err != nil {
		return checkpoint.From(err)
	}
	fs.sectorCache.current = sector
	return nil
}

// store writes the data cache window back to the device.
func (fs *Fs) store() error {
	if fs.sectorCache.current == noSector {
		return nil
	}
	if err := fs.device.WriteBlock(fs.sectorCache.current, fs.sectorCache.buffer); err != nil {
		return checkpoint.From(err)
	}
	fs.sectorCache.flags.Dirty = false
	return nil
}

// syncLocked flushes both cache windows and the FSInfo hints to the
// device. The caller must hold fs.lock.
func (fs *Fs) syncLocked() error {
	if err := fs.writeFSInfo(); err != nil {
		return err
	}
	if fs.sectorCache.flags.Dirty {
		if err := fs.store(); err != nil {
			return err
		}
	}
	if fs.fatCache.flags.Dirty {
		if err := fs.storeFat(); err != nil {
			return err
		}
	}
	return nil
}

// Label returns the volume label read from the boot sector.
func (fs *Fs) Label() string {
	return fs.info.Label
}

// FSType returns the type of the mounted filesystem.
func (fs *Fs) FSType() FATType {
	return fs.info.FSType
}

// FreeClusters returns the number of free clusters. On FAT16, and on FAT32
// without a valid FSInfo hint, the first call scans the whole FAT.
func (fs *Fs) FreeClusters() (uint32, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.freeCount != unknownFree {
		return fs.freeCount, nil
	}
	var free uint32
	for c := fatEntry(2); uint32(c) < fs.info.ClusterCount+2; c++ {
		v, err := fs.getFatEntry(c)
		if err != nil {
			return 0, err
		}
		if v.IsFree() {
			free++
		}
	}
	fs.freeCount = free
	return free, nil
}

// readFileAt reads up to readSize bytes at offset from the chain starting at
// cluster. Reads are clamped to fileSize, reading at or past it returns
// io.EOF.
func (fs *Fs) readFileAtLocked(cluster fatEntry, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	if offset >= fileSize {
		return nil, io.EOF
	}
	if offset+readSize > fileSize {
		readSize = fileSize - offset
	}
	bpc := int64(fs.info.SectorsPerCluster) * SectorSize
	result := make([]byte, 0, readSize)
	for readSize > 0 {
		c, err := fs.walkChain(cluster, uint32(offset/bpc), false)
		if err == io.EOF {
			// The entry claims more bytes than the chain holds.
			return result, checkpoint.From(ErrCorruptDirectory)
		}
		if err != nil {
			return result, err
		}
		sector := fs.firstSectorOfCluster(c) + uint32((offset%bpc)/SectorSize)
		if err := fs.fetch(sector); err != nil {
			return result, err
		}
		o := offset % SectorSize
		n := SectorSize - o
		if n > readSize {
			n = readSize
		}
		result = append(result, fs.sectorCache.buffer[o:o+n]...)
		offset += n
		readSize -= n
	}
	return result, nil
}

// writeFileAt writes p at offset into the chain starting at cluster,
// allocating clusters as needed. It returns the chain head (a chain is
// allocated on the first write to an empty file), the new file size and the
// number of bytes written.
func (fs *Fs) writeFileAtLocked(cluster fatEntry, fileSize int64, offset int64, p []byte) (fatEntry, int64, int, error) {
	if !cluster.IsNextCluster() {
		c, err := fs.allocateCluster(0)
		if err != nil {
			return cluster, fileSize, 0, err
		}
		cluster = c
	}
	if offset > fileSize {
		// FAT has no holes, fill the gap with zeros first.
		zero := make([]byte, offset-fileSize)
		c, size, _, err := fs.writeFileAtLocked(cluster, fileSize, fileSize, zero)
		if err != nil {
			return c, size, 0, err
		}
		cluster, fileSize = c, size
	}
	bpc := int64(fs.info.SectorsPerCluster) * SectorSize
	written := 0
	for written < len(p) {
		c, err := fs.walkChain(cluster, uint32(offset/bpc), true)
		if err != nil {
			return cluster, fileSize, written, err
		}
		sector := fs.firstSectorOfCluster(c) + uint32((offset%bpc)/SectorSize)
		if err := fs.fetch(sector); err != nil {
			return cluster, fileSize, written, err
		}
		o := offset % SectorSize
		n := int(SectorSize - o)
		if n > len(p)-written {
			n = len(p) - written
		}
		copy(fs.sectorCache.buffer[o:], p[written:written+n])
		fs.sectorCache.flags.Dirty = true
		offset += int64(n)
		written += n
		if offset > fileSize {
			fileSize = offset
		}
	}
	return cluster, fileSize, written, nil
}

// flushEntry writes the 32-byte directory record back to its on-disk slot.
func (fs *Fs) flushEntryLocked(location entryLocation, header EntryHeader) error {
	if location.Sector == 0 {
		// The synthetic root entry has no record on disk.
		return nil
	}
	if err := fs.fetch(location.Sector); err != nil {
		return err
	}
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, &header); err != nil {
		return checkpoint.From(err)
	}
	copy(fs.sectorCache.buffer[location.Offset:], raw.Bytes())
	fs.sectorCache.flags.Dirty = true
	return nil
}

// The methods below form the fatFileFs surface used by File. They take the
// lock themselves so open file handles stay safe to use next to direct Fs
// calls.

func (fs *Fs) readFileAt(cluster fatEntry, fileSize int64, offset int64, readSize int64) ([]byte, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.readFileAtLocked(cluster, fileSize, offset, readSize)
}

func (fs *Fs) writeFileAt(cluster fatEntry, fileSize int64, offset int64, p []byte) (fatEntry, int64, int, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.writeFileAtLocked(cluster, fileSize, offset, p)
}

func (fs *Fs) truncateChain(cluster fatEntry, size int64) (fatEntry, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.truncateChainLocked(cluster, size)
}

func (fs *Fs) flushEntry(location entryLocation, header EntryHeader) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.flushEntryLocked(location, header)
}

func (fs *Fs) readRoot() ([]ExtendedEntryHeader, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.readRootLocked()
}

func (fs *Fs) readDir(cluster fatEntry) ([]ExtendedEntryHeader, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.readDirLocked(cluster)
}

func (fs *Fs) sync() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.syncLocked()
}

// Name returns the name of the filesystem.
func (fs *Fs) Name() string {
	return "inkyfs"
}

// Create creates or truncates the file at the given path and opens it for
// reading and writing. Missing parent directories are created.
func (fs *Fs) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0)
}

// Open opens the file or directory at the given path for reading.
func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens the file at the given path with the usual os.O_* flags.
// With os.O_CREATE, missing parent directories are created as well.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(name)
	if err == nil && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return nil, checkpoint.Wrap(os.ErrExist, ErrOpenFile)
	}
	if errors.Is(err, ErrNotFound) && flag&os.O_CREATE != 0 {
		entry, err = fs.createPath(name, perm)
		if err == nil {
			err = fs.syncLocked()
		}
	}
	if err != nil {
		return nil, err
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if entry.isDirectory() && writable {
		return nil, checkpoint.Wrap(syscall.EISDIR, ErrOpenFile)
	}
	if entry.Attribute&AttrReadOnly != 0 && writable {
		return nil, checkpoint.Wrap(os.ErrPermission, ErrOpenFile)
	}

	file := &File{
		fs:           fs,
		path:         normalizePath(name),
		isDirectory:  entry.isDirectory(),
		isReadOnly:   entry.Attribute&AttrReadOnly != 0,
		isHidden:     entry.Attribute&AttrHidden != 0,
		isSystem:     entry.Attribute&AttrSystem != 0,
		writable:     writable,
		appendMode:   flag&os.O_APPEND != 0,
		firstCluster: entry.firstCluster(),
		header:       entry.EntryHeader,
		longName:     entry.ExtendedName,
		location:     entry.location,
	}
	if flag&os.O_TRUNC != 0 && !entry.isDirectory() && entry.FileSize > 0 {
		head, err := fs.truncateChainLocked(file.firstCluster, 0)
		if err != nil {
			return nil, err
		}
		file.firstCluster = head
		file.header.FileSize = 0
		file.header.setFirstCluster(head)
		if err := fs.flushEntryLocked(file.location, file.header); err != nil {
			return nil, err
		}
		if err := fs.syncLocked(); err != nil {
			return nil, err
		}
	}
	if file.appendMode {
		file.offset = int64(file.header.FileSize)
	}
	return file, nil
}

// createPath creates the file named by path, including any missing parent
// directories along the way.
func (fs *Fs) createPath(path string, perm os.FileMode) (ExtendedEntryHeader, error) {
	segments, err := splitPath(path)
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	if len(segments) == 0 {
		return ExtendedEntryHeader{}, checkpoint.From(os.ErrInvalid)
	}
	dir := rootEntry()
	for _, segment := range segments[:len(segments)-1] {
		next, err := fs.lookup(dir, segment)
		if errors.Is(err, ErrNotFound) {
			next, err = fs.createEntry(dir, segment, AttrDirectory)
		}
		if err != nil {
			return ExtendedEntryHeader{}, err
		}
		if !next.isDirectory() {
			return ExtendedEntryHeader{}, checkpoint.Wrap(syscall.ENOTDIR, ErrNotADirectory)
		}
		dir = next
	}
	attr := byte(AttrArchive)
	if perm&0o200 == 0 && perm != 0 {
		attr |= AttrReadOnly
	}
	return fs.createEntry(dir, segments[len(segments)-1], attr)
}

// Mkdir creates the directory at the given path.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, err := fs.resolve(name); err == nil {
		return checkpoint.From(os.ErrExist)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	segments, err := splitPath(name)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return checkpoint.From(os.ErrExist)
	}
	parent := rootEntry()
	if len(segments) > 1 {
		parent, err = fs.resolveSegments(segments[:len(segments)-1])
		if err != nil {
			return err
		}
		if !parent.isDirectory() {
			return checkpoint.Wrap(syscall.ENOTDIR, ErrNotADirectory)
		}
	}
	_, err = fs.createEntry(parent, segments[len(segments)-1], AttrDirectory)
	if err != nil {
		return err
	}
	return fs.syncLocked()
}

// MkdirAll creates the directory at the given path along with any missing
// parents. Existing directories are not an error.
func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	dir := rootEntry()
	for _, segment := range segments {
		next, err := fs.lookup(dir, segment)
		if errors.Is(err, ErrNotFound) {
			next, err = fs.createEntry(dir, segment, AttrDirectory)
		}
		if err != nil {
			return err
		}
		if !next.isDirectory() {
			return checkpoint.Wrap(syscall.ENOTDIR, ErrNotADirectory)
		}
		dir = next
	}
	return fs.syncLocked()
}

// Remove removes the file or empty directory at the given path.
func (fs *Fs) Remove(name string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if entry.location.Sector == 0 {
		// Never remove the root directory.
		return checkpoint.From(os.ErrInvalid)
	}
	if entry.isDirectory() {
		children, err := fs.readDirLocked(entry.firstCluster())
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return checkpoint.From(ErrDirectoryNotEmpty)
		}
	}
	if err := fs.removeEntry(entry); err != nil {
		return err
	}
	return fs.syncLocked()
}

// RemoveAll removes the entry at the given path and, for directories, every
// entry below it. A path that does not exist is not an error.
func (fs *Fs) RemoveAll(path string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.location.Sector == 0 {
		return checkpoint.From(os.ErrInvalid)
	}
	if err := fs.removeTree(entry, 0); err != nil {
		return err
	}
	return fs.syncLocked()
}

func (fs *Fs) removeTree(entry ExtendedEntryHeader, depth int) error {
	if depth > maxPathDepth {
		return checkpoint.From(ErrCorruptDirectory)
	}
	if entry.isDirectory() {
		children, err := fs.readDirLocked(entry.firstCluster())
		if err != nil {
			return err
		}
		for i := range children {
			if err := fs.removeTree(children[i], depth+1); err != nil {
				return err
			}
		}
	}
	return fs.removeEntry(entry)
}

// Rename is not supported, entries would need to move between directories
// in a single step and the single-window design cannot do that atomically.
func (fs *Fs) Rename(oldname, newname string) error {
	return checkpoint.From(ErrNotSupported)
}

// Stat returns file info for the entry at the given path.
func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	if entry.location.Sector == 0 {
		// The root has no on-disk entry to take a name from.
		entry.ExtendedName = "/"
	}
	return entry.FileInfo(), nil
}

// Chmod maps the write permission bit onto the read-only attribute. All
// other mode bits are ignored, FAT has nowhere to store them.
func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if entry.location.Sector == 0 {
		return checkpoint.From(os.ErrInvalid)
	}
	if mode&0o200 == 0 {
		entry.Attribute |= AttrReadOnly
	} else {
		entry.Attribute &^= AttrReadOnly
	}
	if err := fs.flushEntryLocked(entry.location, entry.EntryHeader); err != nil {
		return err
	}
	return fs.syncLocked()
}

// Chown is not supported, FAT stores no ownership.
func (fs *Fs) Chown(name string, uid, gid int) error {
	return checkpoint.From(ErrNotSupported)
}

// Chtimes sets the access and modification timestamps of the entry at the
// given path, truncated to the two-second resolution of the on-disk format.
func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	entry, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if entry.location.Sector == 0 {
		return checkpoint.From(os.ErrInvalid)
	}
	entry.LastAccessDate = toDate(atime)
	entry.WriteDate = toDate(mtime)
	entry.WriteTime = toTime(mtime)
	if err := fs.flushEntryLocked(entry.location, entry.EntryHeader); err != nil {
		return err
	}
	return fs.syncLocked()
}
