package inkyfs

import (
	"errors"
	"io"

	"github.com/secfurry/inkyfs/checkpoint"
)

// These errors may occur while working with cluster chains.
var (
	ErrNoSpace          = errors.New("no free cluster left on the volume")
	ErrCorruptDirectory = errors.New("corrupt filesystem structure")
)

// fatEntry is one FAT table entry. FAT16 values are widened into the FAT32
// ranges when read (and narrowed again on write) so that the classification
// methods work for both FAT types.
type fatEntry uint32

const (
	// fatEOF is the end-of-chain marker written at the tail of a chain.
	fatEOF fatEntry = 0x0FFFFFFF
	// unknownFree means the free-cluster count has not been computed.
	unknownFree = 0xFFFFFFFF
	// noSector marks an empty sector cache.
	noSector = 0xFFFFFFFF
)

func (e fatEntry) Value() uint32 {
	return uint32(e)
}

func (e fatEntry) IsFree() bool {
	return e == 0
}

func (e fatEntry) IsReservedTemp() bool {
	return e == 1
}

func (e fatEntry) IsNextCluster() bool {
	return e >= 2 && e <= 0xFFFFFEF
}

func (e fatEntry) IsReservedSometimes() bool {
	return e >= 0xFFFFFF0 && e <= 0xFFFFFF5
}

func (e fatEntry) IsReserved() bool {
	return e == 0xFFFFFF6
}

func (e fatEntry) IsBad() bool {
	return e == 0xFFFFFF7
}

func (e fatEntry) IsEOF() bool {
	return e >= 0xFFFFFF8 && e <= 0xFFFFFFF
}

// ReadAsNextCluster reports if the entry should be followed as a chain link.
// The sometimes-reserved range is treated as a valid link as some drivers
// write it.
func (e fatEntry) ReadAsNextCluster() bool {
	return e.IsNextCluster() || e.IsReservedSometimes()
}

// ReadAsEOF reports if the entry should be treated as the end of a chain.
func (e fatEntry) ReadAsEOF() bool {
	return e.IsEOF() || e.IsReserved()
}

// chainMemo remembers the last chain position handed out by walkChain so
// sequential access does not re-walk the whole chain from the head on every
// call.
type chainMemo struct {
	head    fatEntry
	cluster fatEntry
	index   uint32
}

// fatSectorFor returns the FAT sector containing the entry for cluster and
// the byte offset of the entry inside that sector.
func (fs *Fs) fatSectorFor(cluster fatEntry) (uint32, uint32) {
	width := uint32(2)
	if fs.info.FSType == FAT32 {
		width = 4
	}
	off := uint32(cluster) * width
	return uint32(fs.info.ReservedSectors) + off/SectorSize, off % SectorSize
}

// fetchFat loads the FAT sector into the FAT cache window, writing the
// window back first if it is dirty. This bounds the RAM used for FAT access
// to a single sector no matter how large the volume is.
func (fs *Fs) fetchFat(sector uint32) error {
	if sector == fs.fatCache.current {
		return nil
	}
	if fs.fatCache.flags.Dirty {
		if err := fs.storeFat(); err != nil {
			return err
		}
	}
	if err := fs.device.ReadBlock(sector, fs.fatCache.buffer); err != nil {
		return checkpoint.From(err)
	}
	fs.fatCache.current = sector
	return nil
}

// storeFat writes the cached FAT sector back into every FAT copy.
func (fs *Fs) storeFat() error {
	if fs.fatCache.current == noSector {
		return nil
	}
	for i := uint32(0); i < uint32(fs.info.NumFATs); i++ {
		sector := fs.fatCache.current + i*fs.info.SectorsPerFAT
		if err := fs.device.WriteBlock(sector, fs.fatCache.buffer); err != nil {
			return checkpoint.From(err)
		}
	}
	fs.fatCache.flags.Dirty = false
	return nil
}

// getFatEntry reads the FAT entry for the given cluster.
func (fs *Fs) getFatEntry(cluster fatEntry) (fatEntry, error) {
	sector, off := fs.fatSectorFor(cluster)
	if err := fs.fetchFat(sector); err != nil {
		return 0, err
	}
	buf := fs.fatCache.buffer
	if fs.info.FSType == FAT32 {
		v := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
		return fatEntry(v & 0x0FFFFFFF), nil
	}
	v := uint16(buf[off]) | uint16(buf[off+1])<<8
	if v >= 0xFFF0 {
		// Widen the FAT16 special range into the FAT32 one.
		return fatEntry(0x0FFFFFF0 | uint32(v&0xF)), nil
	}
	return fatEntry(v), nil
}

// setFatEntry writes the FAT entry for the given cluster into the cache
// window. The change reaches the device when the window is evicted or
// flushed.
func (fs *Fs) setFatEntry(cluster, value fatEntry) error {
	sector, off := fs.fatSectorFor(cluster)
	if err := fs.fetchFat(sector); err != nil {
		return err
	}
	buf := fs.fatCache.buffer
	if fs.info.FSType == FAT32 {
		// The top nibble is reserved and must survive the write.
		old := uint32(buf[off+3]) << 24
		v := (old & 0xF0000000) | (uint32(value) & 0x0FFFFFFF)
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	} else {
		v := uint16(value)
		if value >= 0x0FFFFFF0 {
			v = 0xFFF0 | uint16(value&0xF)
		}
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}
	fs.fatCache.flags.Dirty = true
	return nil
}

// nextCluster follows the FAT link of cluster. The returned entry may be an
// EOF marker, check it with ReadAsEOF. A free or bad entry inside a chain is
// untrusted input and reported as corruption.
func (fs *Fs) nextCluster(cluster fatEntry) (fatEntry, error) {
	v, err := fs.getFatEntry(cluster)
	if err != nil {
		return 0, err
	}
	if v.ReadAsEOF() || v.ReadAsNextCluster() {
		return v, nil
	}
	return 0, checkpoint.From(ErrCorruptDirectory)
}

// walkChain returns the cluster at the given chain index, counted from head.
// When extend is set, the chain is grown cluster by cluster until the index
// exists. Without extend, running past the end returns io.EOF.
//
// Offsets that only ever grow (the common sequential case) resume from the
// previously visited cluster instead of starting over at the head.
func (fs *Fs) walkChain(head fatEntry, index uint32, extend bool) (fatEntry, error) {
	cluster, i := head, uint32(0)
	if fs.memo.head == head && fs.memo.index <= index && fs.memo.cluster.IsNextCluster() {
		cluster, i = fs.memo.cluster, fs.memo.index
	}
	for ; i < index; i++ {
		// The FAT comes from removable media, bound the walk instead of
		// trusting it to terminate.
		if i > fs.info.ClusterCount {
			return 0, checkpoint.From(ErrCorruptDirectory)
		}
		v, err := fs.nextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if v.ReadAsEOF() {
			if !extend {
				return 0, io.EOF
			}
			v, err = fs.allocateCluster(cluster)
			if err != nil {
				return 0, err
			}
		}
		cluster = v
	}
	fs.memo = chainMemo{head: head, cluster: cluster, index: index}
	return cluster, nil
}

// findFreeCluster scans the FAT for a zero entry starting at the rolling
// cursor, wrapping around once. The cursor survives across calls so small
// allocations do not rescan the start of the FAT every time.
func (fs *Fs) findFreeCluster() (fatEntry, error) {
	end := fatEntry(fs.info.ClusterCount + 2)
	if fs.allocCursor < 2 || fs.allocCursor >= end {
		fs.allocCursor = 2
	}
	start := fs.allocCursor
	cluster := start
	for {
		v, err := fs.getFatEntry(cluster)
		if err != nil {
			return 0, err
		}
		if v.IsFree() {
			fs.allocCursor = cluster + 1
			return cluster, nil
		}
		cluster++
		if cluster >= end {
			cluster = 2
		}
		if cluster == start {
			return 0, checkpoint.From(ErrNoSpace)
		}
	}
}

// allocateCluster claims a free cluster, marks it as the chain tail and
// links it behind prev if prev is a valid cluster.
func (fs *Fs) allocateCluster(prev fatEntry) (fatEntry, error) {
	cluster, err := fs.findFreeCluster()
	if err != nil {
		return 0, err
	}
	if err := fs.setFatEntry(cluster, fatEOF); err != nil {
		return 0, err
	}
	if prev.IsNextCluster() {
		if err := fs.setFatEntry(prev, cluster); err != nil {
			return 0, err
		}
	}
	if fs.freeCount != unknownFree {
		fs.freeCount--
		fs.fsInfoDirty = true
	}
	fs.lastAllocated = cluster
	return cluster, nil
}

// freeChain zeroes every FAT entry of the chain starting at head. The walk
// is bounded by the total cluster count and rejects cycles.
func (fs *Fs) freeChain(head fatEntry) error {
	if !head.IsNextCluster() {
		return nil
	}
	cluster := head
	for visited := uint32(0); ; visited++ {
		if visited > fs.info.ClusterCount {
			return checkpoint.From(ErrCorruptDirectory)
		}
		next, err := fs.getFatEntry(cluster)
		if err != nil {
			return err
		}
		if err := fs.setFatEntry(cluster, 0); err != nil {
			return err
		}
		if fs.freeCount != unknownFree {
			fs.freeCount++
			fs.fsInfoDirty = true
		}
		if next.ReadAsEOF() {
			break
		}
		if !next.ReadAsNextCluster() {
			return checkpoint.From(ErrCorruptDirectory)
		}
		cluster = next
	}
	if fs.memo.head == head {
		fs.memo = chainMemo{}
	}
	return nil
}

// truncateChainLocked shrinks the chain starting at head so it holds
// exactly size bytes and returns the (possibly cleared) chain head. The
// caller must hold fs.lock.
func (fs *Fs) truncateChainLocked(head fatEntry, size int64) (fatEntry, error) {
	if !head.IsNextCluster() {
		return head, nil
	}
	if size <= 0 {
		if err := fs.freeChain(head); err != nil {
			return head, err
		}
		return 0, nil
	}
	bpc := int64(fs.info.SectorsPerCluster) * SectorSize
	keep := uint32((size + bpc - 1) / bpc)
	last, err := fs.walkChain(head, keep-1, false)
	if err == io.EOF {
		// Chain already shorter than the requested size.
		return head, nil
	}
	if err != nil {
		return head, err
	}
	next, err := fs.getFatEntry(last)
	if err != nil {
		return head, err
	}
	if err := fs.setFatEntry(last, fatEOF); err != nil {
		return head, err
	}
	fs.memo = chainMemo{}
	if next.ReadAsNextCluster() {
		if err := fs.freeChain(next); err != nil {
			return head, err
		}
	}
	return head, nil
}

// firstSectorOfCluster maps a cluster index onto its first absolute sector.
// Clusters 0 and 1 are reserved, the data region starts at cluster 2.
func (fs *Fs) firstSectorOfCluster(cluster fatEntry) uint32 {
	return fs.info.FirstDataSector + (uint32(cluster)-2)*uint32(fs.info.SectorsPerCluster)
}

// zeroCluster overwrites every sector of the cluster with zeros. New
// directory clusters must be zeroed so the entry terminator is in place.
func (fs *Fs) zeroCluster(cluster fatEntry) error {
	zero := make([]byte, SectorSize)
	first := fs.firstSectorOfCluster(cluster)
	for i := uint32(0); i < uint32(fs.info.SectorsPerCluster); i++ {
		if fs.sectorCache.current == first+i {
			// Drop a stale window over the sector being cleared.
			fs.sectorCache.current = noSector
			fs.sectorCache.flags.Dirty = false
		}
		if err := fs.device.WriteBlock(first+i, zero); err != nil {
			return checkpoint.From(err)
		}
	}
	return nil
}
