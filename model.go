// File model contains the structs which match the direct structures of the FAT filesystem.

package inkyfs

// Attribute flags of a directory entry. LongName is the magic combination
// marking an entry as a long-filename fragment.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// entryFree marks a deleted, reusable directory slot. A first byte of zero
// ends the used region of a directory.
const (
	entryFree     = 0xE5
	lastLongEntry = 0x40
)

type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     [54]byte
}

type FAT16SpecificData struct {
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeId       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

type FAT32SpecificData struct {
	FatSize          uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      fatEntry
	FSInfo           uint16
	BkBootSector     uint16
	Reserved         [12]byte
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeID       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

type LongFilenameEntry struct {
	Sequence  byte
	First     [5]uint16
	Attribute byte
	EntryType byte
	Checksum  byte
	Second    [6]uint16
	Zero      [2]byte
	Third     [2]uint16
}

// entryLocation is the on-disk position of a 32-byte directory record.
type entryLocation struct {
	Sector uint32
	Offset uint16
}

// ExtendedEntryHeader is a directory entry merged with the long name
// reassembled from the preceding long-filename fragments, if any.
type ExtendedEntryHeader struct {
	EntryHeader
	ExtendedName string

	location     entryLocation
	lfnLocations []entryLocation
}

func (h *EntryHeader) firstCluster() fatEntry {
	return fatEntry(uint32(h.FirstClusterHI)<<16 | uint32(h.FirstClusterLO))
}

func (h *EntryHeader) setFirstCluster(cluster fatEntry) {
	h.FirstClusterHI = uint16(cluster >> 16)
	h.FirstClusterLO = uint16(cluster & 0xFFFF)
}

func (h *EntryHeader) isDirectory() bool {
	return h.Attribute&AttrDirectory == AttrDirectory
}

func (h *EntryHeader) isVolumeLabel() bool {
	return h.Attribute&AttrLongName != AttrLongName && h.Attribute&AttrVolumeID != 0
}
