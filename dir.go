package inkyfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/secfurry/inkyfs/checkpoint"
)

// These errors may occur while resolving paths and editing directories.
var (
	ErrNotFound          = errors.New("no such file or directory")
	ErrNotADirectory     = errors.New("not a directory")
	ErrDirectoryNotEmpty = errors.New("directory not empty")
)

const entriesPerSector = SectorSize / 32

// dirSectors walks the sectors of a directory: either the fixed FAT16 root
// region or a cluster chain. With extend set, reaching the end of the chain
// allocates and zeroes a fresh cluster instead of stopping.
type dirSectors struct {
	fs      *Fs
	cluster fatEntry
	sector  uint32
	left    uint32
	visited uint32
	extend  bool
}

// openDirSectors starts a walk over the directory with the given first
// cluster. Cluster zero addresses the root directory of both FAT types.
func (fs *Fs) openDirSectors(cluster fatEntry, extend bool) dirSectors {
	if cluster == 0 {
		if fs.info.FSType == FAT16 {
			start := uint32(fs.info.ReservedSectors) + uint32(fs.info.NumFATs)*fs.info.SectorsPerFAT
			return dirSectors{fs: fs, sector: start, left: fs.info.RootDirSectors}
		}
		cluster = fs.info.RootCluster
	}
	return dirSectors{
		fs:      fs,
		cluster: cluster,
		sector:  fs.firstSectorOfCluster(cluster),
		left:    uint32(fs.info.SectorsPerCluster),
		extend:  extend,
	}
}

// next returns the next sector of the directory, or io.EOF past the end.
func (d *dirSectors) next() (uint32, error) {
	if d.left == 0 {
		if d.cluster == 0 {
			// Fixed root region, nothing to extend.
			return 0, io.EOF
		}
		if d.visited++; d.visited > d.fs.info.ClusterCount {
			return 0, checkpoint.From(ErrCorruptDirectory)
		}
		next, err := d.fs.nextCluster(d.cluster)
		if err != nil {
			return 0, err
		}
		if next.ReadAsEOF() {
			if !d.extend {
				return 0, io.EOF
			}
			next, err = d.fs.allocateCluster(d.cluster)
			if err != nil {
				return 0, err
			}
			if err := d.fs.zeroCluster(next); err != nil {
				return 0, err
			}
		}
		d.cluster = next
		d.sector = d.fs.firstSectorOfCluster(next)
		d.left = uint32(d.fs.info.SectorsPerCluster)
	}
	s := d.sector
	d.sector++
	d.left--
	return s, nil
}

// rootEntry is the synthetic entry representing the root directory. It has
// no on-disk record, its location stays the zero value.
func rootEntry() ExtendedEntryHeader {
	return ExtendedEntryHeader{EntryHeader: EntryHeader{Attribute: AttrDirectory}}
}

// readRootLocked reads the entries of the root directory. The caller must
// hold fs.lock.
func (fs *Fs) readRootLocked() ([]ExtendedEntryHeader, error) {
	return fs.readDirLocked(0)
}

// readDir reads all entries of the directory starting at the given cluster,
// merging long-filename fragments into their short entries. Deleted slots,
// volume labels and the dot entries are skipped.
func (fs *Fs) readDirLocked(cluster fatEntry) ([]ExtendedEntryHeader, error) {
	var entries []ExtendedEntryHeader
	err := fs.scanDir(cluster, func(e ExtendedEntryHeader) (bool, error) {
		entries = append(entries, e)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// scanDir walks the directory entry by entry, calling fn for every live
// entry until fn returns false or the end of the directory is reached.
func (fs *Fs) scanDir(cluster fatEntry, fn func(ExtendedEntryHeader) (bool, error)) error {
	var acc lfnAccumulator
	iter := fs.openDirSectors(cluster, false)
	rec := make([]byte, 32)
	for {
		sector, err := iter.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		for i := 0; i < entriesPerSector; i++ {
			if err := fs.fetch(sector); err != nil {
				return err
			}
			copy(rec, fs.sectorCache.buffer[i*32:])
			loc := entryLocation{Sector: sector, Offset: uint16(i * 32)}
			switch {
			case rec[0] == 0:
				return nil
			case rec[0] == entryFree:
				acc.reset()
				continue
			case rec[11]&AttrLongName == AttrLongName:
				acc.add(rec, loc)
				continue
			}

			var header EntryHeader
			if err := binary.Read(bytes.NewReader(rec), binary.LittleEndian, &header); err != nil {
				return checkpoint.From(err)
			}
			name, lfnLocs, err := acc.take(shortNameChecksum(header.Name))
			if err != nil {
				return err
			}
			if header.isVolumeLabel() || header.Name[0] == '.' {
				continue
			}
			more, err := fn(ExtendedEntryHeader{
				EntryHeader:  header,
				ExtendedName: name,
				location:     loc,
				lfnLocations: lfnLocs,
			})
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
}

// lookup finds the entry named name inside the directory dir. Matching is
// case-insensitive against both the long and the 8.3 name.
func (fs *Fs) lookup(dir ExtendedEntryHeader, name string) (ExtendedEntryHeader, error) {
	if !dir.isDirectory() {
		return ExtendedEntryHeader{}, checkpoint.Wrap(syscall.ENOTDIR, ErrNotADirectory)
	}
	var found *ExtendedEntryHeader
	err := fs.scanDir(dir.firstCluster(), func(e ExtendedEntryHeader) (bool, error) {
		if strings.EqualFold(name, e.Name()) ||
			(e.ExtendedName != "" && strings.EqualFold(name, displayShortName(e.EntryHeader.Name))) {
			entry := e
			found = &entry
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	if found == nil {
		return ExtendedEntryHeader{}, checkpoint.From(ErrNotFound)
	}
	return *found, nil
}

// resolve follows the given path from the root down to its entry.
func (fs *Fs) resolve(path string) (ExtendedEntryHeader, error) {
	segments, err := splitPath(path)
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	return fs.resolveSegments(segments)
}

func (fs *Fs) resolveSegments(segments []string) (ExtendedEntryHeader, error) {
	entry := rootEntry()
	for _, segment := range segments {
		if segment == ".." {
			return ExtendedEntryHeader{}, checkpoint.From(ErrNotFound)
		}
		next, err := fs.lookup(entry, segment)
		if err != nil {
			return ExtendedEntryHeader{}, err
		}
		entry = next
	}
	return entry, nil
}

// findEntryRun locates count consecutive free directory slots, extending
// the directory with a fresh cluster when the existing ones are full.
func (fs *Fs) findEntryRun(cluster fatEntry, count int) ([]entryLocation, error) {
	run := make([]entryLocation, 0, count)
	iter := fs.openDirSectors(cluster, true)
	for {
		sector, err := iter.next()
		if err == io.EOF {
			// Only the fixed FAT16 root region can run out of slots.
			return nil, checkpoint.From(ErrNoSpace)
		}
		if err != nil {
			return nil, err
		}
		if err := fs.fetch(sector); err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector; i++ {
			first := fs.sectorCache.buffer[i*32]
			if first == 0 || first == entryFree {
				run = append(run, entryLocation{Sector: sector, Offset: uint16(i * 32)})
				if len(run) == count {
					return run, nil
				}
			} else {
				run = run[:0]
			}
		}
	}
}

// writeRecord writes a raw 32-byte record into a directory slot.
func (fs *Fs) writeRecord(loc entryLocation, rec []byte) error {
	if err := fs.fetch(loc.Sector); err != nil {
		return err
	}
	copy(fs.sectorCache.buffer[loc.Offset:loc.Offset+32], rec)
	fs.sectorCache.flags.Dirty = true
	return nil
}

// createEntry creates a new entry named name inside the directory dir. For
// names that do not fit the 8.3 form it writes long-filename fragments and
// picks the first free numeric-tail alias. Directories get a cluster with
// the dot entries in place.
func (fs *Fs) createEntry(dir ExtendedEntryHeader, name string, attr byte) (ExtendedEntryHeader, error) {
	if len([]rune(name)) > MaxNameLength {
		return ExtendedEntryHeader{}, checkpoint.From(ErrNameTooLong)
	}
	if name == "" || name == "." || name == ".." {
		return ExtendedEntryHeader{}, checkpoint.From(ErrNotFound)
	}
	short, lossy := toShortName(name)
	if lossy {
		alias, err := fs.freeAlias(dir, short)
		if err != nil {
			return ExtendedEntryHeader{}, err
		}
		short = alias
	}

	header := EntryHeader{Name: short, Attribute: attr}
	now := timeNow()
	header.CreateDate, header.CreateTime = toDate(now), toTime(now)
	header.WriteDate, header.WriteTime = header.CreateDate, header.CreateTime
	header.LastAccessDate = header.CreateDate

	if attr&AttrDirectory != 0 {
		cluster, err := fs.allocateCluster(0)
		if err != nil {
			return ExtendedEntryHeader{}, err
		}
		if err := fs.zeroCluster(cluster); err != nil {
			return ExtendedEntryHeader{}, err
		}
		header.setFirstCluster(cluster)
		if err := fs.writeDotEntries(cluster, dir.firstCluster(), header); err != nil {
			return ExtendedEntryHeader{}, err
		}
	}

	var records [][32]byte
	longName := ""
	if lossy {
		records = longNameRecords(name, shortNameChecksum(short))
		longName = name
	}
	var shortRec [32]byte
	raw := bytes.NewBuffer(shortRec[:0])
	if err := binary.Write(raw, binary.LittleEndian, &header); err != nil {
		return ExtendedEntryHeader{}, checkpoint.From(err)
	}
	copy(shortRec[:], raw.Bytes())
	records = append(records, shortRec)

	locs, err := fs.findEntryRun(dir.firstCluster(), len(records))
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	for i := range records {
		if err := fs.writeRecord(locs[i], records[i][:]); err != nil {
			return ExtendedEntryHeader{}, err
		}
	}
	return ExtendedEntryHeader{
		EntryHeader:  header,
		ExtendedName: longName,
		location:     locs[len(locs)-1],
		lfnLocations: locs[:len(locs)-1],
	}, nil
}

// freeAlias finds the lowest numeric-tail alias of base not yet used inside
// the directory.
func (fs *Fs) freeAlias(dir ExtendedEntryHeader, base [11]byte) ([11]byte, error) {
	used := make(map[[11]byte]bool)
	err := fs.scanDir(dir.firstCluster(), func(e ExtendedEntryHeader) (bool, error) {
		used[e.EntryHeader.Name] = true
		return true, nil
	})
	if err != nil {
		return base, err
	}
	for n := 1; n < 1000000; n++ {
		alias := numericTailAlias(base, n)
		if !used[alias] {
			return alias, nil
		}
	}
	return base, checkpoint.From(ErrNoSpace)
}

// writeDotEntries writes the "." and ".." records into a fresh directory
// cluster. The parent cluster is zero when the parent is the root.
func (fs *Fs) writeDotEntries(cluster, parent fatEntry, template EntryHeader) error {
	dot := template
	dot.Name = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dot.setFirstCluster(cluster)
	dotdot := template
	dotdot.Name = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	if parent == fs.info.RootCluster {
		parent = 0
	}
	dotdot.setFirstCluster(parent)

	sector := fs.firstSectorOfCluster(cluster)
	for i, h := range []EntryHeader{dot, dotdot} {
		var rec [32]byte
		raw := bytes.NewBuffer(rec[:0])
		if err := binary.Write(raw, binary.LittleEndian, &h); err != nil {
			return checkpoint.From(err)
		}
		copy(rec[:], raw.Bytes())
		if err := fs.writeRecord(entryLocation{Sector: sector, Offset: uint16(i * 32)}, rec[:]); err != nil {
			return err
		}
	}
	return nil
}

// removeEntry tombstones the directory record and its long-filename
// fragments and releases the cluster chain of the entry.
func (fs *Fs) removeEntry(entry ExtendedEntryHeader) error {
	for _, loc := range append(entry.lfnLocations, entry.location) {
		if err := fs.fetch(loc.Sector); err != nil {
			return err
		}
		fs.sectorCache.buffer[loc.Offset] = entryFree
		fs.sectorCache.flags.Dirty = true
	}
	return fs.freeChain(entry.firstCluster())
}
