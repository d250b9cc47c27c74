package inkyfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/secfurry/inkyfs/checkpoint"
)

// ErrFormat is returned when a device cannot hold a valid volume with the
// requested options.
var ErrFormat = errors.New("cannot format the device")

// FormatOptions control Format. The zero value picks a filesystem type and
// cluster size matching the device capacity.
type FormatOptions struct {
	// Type selects FAT16 or FAT32. Leave zero to pick by device size.
	Type FATType
	// Label is the volume label, up to 11 characters.
	Label string
	// SectorsPerCluster must be a power of two. Leave zero to pick one.
	SectorsPerCluster uint8
	// OEMName overrides the OEM name field, up to 8 characters.
	OEMName string
}

const (
	fat16RootEntries = 512
	fat16Reserved    = 4
	fat32Reserved    = 32
	formatMedia      = 0xF8
	backupBootSector = 6
)

// Format writes a fresh, empty FAT16 or FAT32 filesystem onto the device.
// Everything on the device is lost.
func Format(device BlockDevice, opts FormatOptions) error {
	total, err := device.Blocks()
	if err != nil {
		return checkpoint.Wrap(err, ErrFormat)
	}
	if total < 128 {
		return checkpoint.From(ErrFormat)
	}

	fsType := opts.Type
	if fsType == FAT12 {
		if total >= 1<<20 {
			fsType = FAT32
		} else {
			fsType = FAT16
		}
	}
	spc := opts.SectorsPerCluster
	if spc == 0 {
		spc = defaultSectorsPerCluster(fsType, total)
	}
	if spc&(spc-1) != 0 || uint32(spc)*SectorSize > 32*1024 {
		return checkpoint.From(ErrFormat)
	}

	layout, err := computeLayout(fsType, total, spc)
	if err != nil {
		return err
	}
	if err := writeBootSectors(device, layout, opts); err != nil {
		return err
	}
	if err := initFATs(device, layout); err != nil {
		return err
	}
	if err := initRoot(device, layout, opts.Label); err != nil {
		return err
	}
	if layout.fsType == FAT32 {
		if err := writeFSInfoSector(device, layout); err != nil {
			return err
		}
	}
	return nil
}

// defaultSectorsPerCluster follows the usual capacity table: small volumes
// get small clusters, capped at 32KiB per cluster.
func defaultSectorsPerCluster(fsType FATType, total uint32) uint8 {
	switch {
	case fsType == FAT16 && total < 32768: // < 16MiB
		return 1
	case fsType == FAT16 && total < 262144: // < 128MiB
		return 4
	case fsType == FAT16:
		return 16
	case total < 532480: // < 260MiB
		return 1
	case total < 16777216: // < 8GiB
		return 8
	default:
		return 16
	}
}

type volumeLayout struct {
	fsType         FATType
	totalSectors   uint32
	spc            uint8
	reserved       uint16
	numFATs        uint8
	fatSize        uint32
	rootEntries    uint16
	rootDirSectors uint32
	clusterCount   uint32
}

// computeLayout sizes the FAT using the usual closed-form estimate and
// verifies the resulting cluster count lands inside the valid range for the
// requested type.
func computeLayout(fsType FATType, total uint32, spc uint8) (volumeLayout, error) {
	l := volumeLayout{
		fsType:       fsType,
		totalSectors: total,
		spc:          spc,
		numFATs:      2,
	}
	switch fsType {
	case FAT16:
		l.reserved = fat16Reserved
		l.rootEntries = fat16RootEntries
		l.rootDirSectors = (uint32(l.rootEntries)*32 + SectorSize - 1) / SectorSize
	case FAT32:
		l.reserved = fat32Reserved
	default:
		return l, checkpoint.From(ErrFormat)
	}

	tmp1 := total - (uint32(l.reserved) + l.rootDirSectors)
	tmp2 := 256*uint32(spc) + uint32(l.numFATs)
	if fsType == FAT32 {
		tmp2 /= 2
	}
	l.fatSize = (tmp1 + tmp2 - 1) / tmp2

	firstData := uint32(l.reserved) + uint32(l.numFATs)*l.fatSize + l.rootDirSectors
	if firstData >= total {
		return l, checkpoint.From(ErrFormat)
	}
	l.clusterCount = (total - firstData) / uint32(spc)
	if fsType == FAT16 && (l.clusterCount < 4085 || l.clusterCount >= 65525) {
		return l, checkpoint.From(ErrFormat)
	}
	if fsType == FAT32 && l.clusterCount < 65525 {
		return l, checkpoint.From(ErrFormat)
	}
	return l, nil
}

func (l volumeLayout) firstDataSector() uint32 {
	return uint32(l.reserved) + uint32(l.numFATs)*l.fatSize + l.rootDirSectors
}

func paddedString(s string, length int) []byte {
	out := []byte(strings.ToUpper(s))
	if len(out) > length {
		out = out[:length]
	}
	for len(out) < length {
		out = append(out, ' ')
	}
	return out
}

func writeBootSectors(device BlockDevice, l volumeLayout, opts FormatOptions) error {
	oem := opts.OEMName
	if oem == "" {
		oem = "INKYFS"
	}
	bpb := BPB{
		BSJumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:      SectorSize,
		SectorsPerCluster:   l.spc,
		ReservedSectorCount: l.reserved,
		NumFATs:             l.numFATs,
		RootEntryCount:      l.rootEntries,
		Media:               formatMedia,
		SectorsPerTrack:     63,
		NumberOfHeads:       255,
	}
	copy(bpb.BSOEMName[:], paddedString(oem, 8))
	if l.totalSectors < 0x10000 && l.fsType == FAT16 {
		bpb.TotalSectors16 = uint16(l.totalSectors)
	} else {
		bpb.TotalSectors32 = l.totalSectors
	}

	label := opts.Label
	if label == "" {
		label = "NO NAME"
	}
	specific := bytes.NewBuffer(bpb.FATSpecificData[:0])
	switch l.fsType {
	case FAT16:
		bpb.FATSize16 = uint16(l.fatSize)
		data := FAT16SpecificData{
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeId:      volumeSerial(),
		}
		copy(data.BSVolumeLabel[:], paddedString(label, 11))
		copy(data.BSFileSystemType[:], paddedString("FAT16", 8))
		if err := binary.Write(specific, binary.LittleEndian, &data); err != nil {
			return checkpoint.From(err)
		}
	case FAT32:
		data := FAT32SpecificData{
			FatSize:         l.fatSize,
			RootCluster:     2,
			FSInfo:          1,
			BkBootSector:    backupBootSector,
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
			BSVolumeID:      volumeSerial(),
		}
		copy(data.BSVolumeLabel[:], paddedString(label, 11))
		copy(data.BSFileSystemType[:], paddedString("FAT32", 8))
		if err := binary.Write(specific, binary.LittleEndian, &data); err != nil {
			return checkpoint.From(err)
		}
	}

	sector := make([]byte, SectorSize)
	raw := bytes.NewBuffer(sector[:0])
	if err := binary.Write(raw, binary.LittleEndian, &bpb); err != nil {
		return checkpoint.From(err)
	}
	sector[510], sector[511] = 0x55, 0xAA
	if err := device.WriteBlock(0, sector); err != nil {
		return checkpoint.Wrap(err, ErrFormat)
	}
	if l.fsType == FAT32 {
		if err := device.WriteBlock(backupBootSector, sector); err != nil {
			return checkpoint.Wrap(err, ErrFormat)
		}
	}
	return nil
}

// volumeSerial derives a serial number from the current time, the usual
// source formatters use.
func volumeSerial() uint32 {
	now := timeNow()
	return uint32(now.Unix()) ^ uint32(now.Nanosecond())
}

// initFATs zeroes every FAT copy and plants the reserved head entries. On
// FAT32 the root directory cluster is terminated as well.
func initFATs(device BlockDevice, l volumeLayout) error {
	zero := make([]byte, SectorSize)
	first := make([]byte, SectorSize)
	switch l.fsType {
	case FAT16:
		binary.LittleEndian.PutUint16(first[0:], 0xFF00|formatMedia)
		binary.LittleEndian.PutUint16(first[2:], 0xFFFF)
	case FAT32:
		binary.LittleEndian.PutUint32(first[0:], 0x0FFFFF00|formatMedia)
		binary.LittleEndian.PutUint32(first[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(first[8:], uint32(fatEOF))
	}
	for copyIdx := uint32(0); copyIdx < uint32(l.numFATs); copyIdx++ {
		start := uint32(l.reserved) + copyIdx*l.fatSize
		for s := uint32(0); s < l.fatSize; s++ {
			buf := zero
			if s == 0 {
				buf = first
			}
			if err := device.WriteBlock(start+s, buf); err != nil {
				return checkpoint.Wrap(err, ErrFormat)
			}
		}
	}
	return nil
}

// initRoot clears the root directory region (FAT16) or the root cluster
// (FAT32) and writes the volume label entry.
func initRoot(device BlockDevice, l volumeLayout, label string) error {
	var start, count uint32
	if l.fsType == FAT16 {
		start = uint32(l.reserved) + uint32(l.numFATs)*l.fatSize
		count = l.rootDirSectors
	} else {
		start = l.firstDataSector()
		count = uint32(l.spc)
	}
	zero := make([]byte, SectorSize)
	for s := uint32(0); s < count; s++ {
		buf := zero
		if s == 0 && label != "" {
			buf = make([]byte, SectorSize)
			header := EntryHeader{Attribute: AttrVolumeID}
			copy(header.Name[:], paddedString(label, 11))
			now := timeNow()
			header.WriteDate, header.WriteTime = toDate(now), toTime(now)
			raw := bytes.NewBuffer(buf[:0])
			if err := binary.Write(raw, binary.LittleEndian, &header); err != nil {
				return checkpoint.From(err)
			}
		}
		if err := device.WriteBlock(start+s, buf); err != nil {
			return checkpoint.Wrap(err, ErrFormat)
		}
	}
	return nil
}

// writeFSInfoSector seeds the FAT32 FSInfo hints: every cluster except the
// root one is free and allocation should start right after it.
func writeFSInfoSector(device BlockDevice, l volumeLayout) error {
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(buf[0:], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(buf[484:], fsInfoStructSig)
	binary.LittleEndian.PutUint32(buf[488:], l.clusterCount-1)
	binary.LittleEndian.PutUint32(buf[492:], 3)
	binary.LittleEndian.PutUint32(buf[508:], fsInfoTrailSig)
	if err := device.WriteBlock(1, buf); err != nil {
		return checkpoint.Wrap(err, ErrFormat)
	}
	return nil
}
