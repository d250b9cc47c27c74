package inkyfs

import (
	"encoding/binary"
	"errors"
	"testing"
)

// testGeometry describes a synthetic boot sector for mount tests. It allows
// placing the cluster count exactly on the FAT type boundaries.
type testGeometry struct {
	clusterCount uint32
	fat32        bool
	breakSig     bool
	label        string
}

// buildTestVolume writes a boot sector (and for FAT32 a minimal FAT) for
// the requested geometry onto a fresh MemDevice.
func buildTestVolume(t *testing.T, g testGeometry) *MemDevice {
	t.Helper()

	const (
		reserved = 32
		numFATs  = 2
	)
	var fatSize, rootDirSectors uint32
	if g.fat32 {
		fatSize = ((g.clusterCount+2)*4 + SectorSize - 1) / SectorSize
	} else {
		fatSize = ((g.clusterCount+2)*2 + SectorSize - 1) / SectorSize
		rootDirSectors = 32
	}
	total := reserved + numFATs*fatSize + rootDirSectors + g.clusterCount

	device := NewMemDevice(total)
	sector := make([]byte, SectorSize)
	sector[0] = 0xEB
	sector[1] = 0x3C
	sector[2] = 0x90
	copy(sector[3:], "MSDOS5.0")
	binary.LittleEndian.PutUint16(sector[11:], SectorSize)
	sector[13] = 1 // sectors per cluster
	binary.LittleEndian.PutUint16(sector[14:], reserved)
	sector[16] = numFATs
	sector[21] = 0xF8
	binary.LittleEndian.PutUint32(sector[32:], total)
	if g.fat32 {
		binary.LittleEndian.PutUint32(sector[36:], fatSize)
		binary.LittleEndian.PutUint32(sector[44:], 2) // root cluster
		sector[66] = 0x29
		copy(sector[71:82], paddedString(g.label, 11))
	} else {
		binary.LittleEndian.PutUint16(sector[17:], 512) // root entries
		binary.LittleEndian.PutUint16(sector[22:], uint16(fatSize))
		sector[38] = 0x29
		copy(sector[43:54], paddedString(g.label, 11))
	}
	if !g.breakSig {
		sector[510], sector[511] = 0x55, 0xAA
	}
	if err := device.WriteBlock(0, sector); err != nil {
		t.Fatalf("write boot sector: %v", err)
	}

	if g.fat32 {
		// Terminate the root directory cluster chain.
		fat := make([]byte, SectorSize)
		binary.LittleEndian.PutUint32(fat[0:], 0x0FFFFFF8)
		binary.LittleEndian.PutUint32(fat[4:], 0x0FFFFFFF)
		binary.LittleEndian.PutUint32(fat[8:], uint32(fatEOF))
		for i := uint32(0); i < numFATs; i++ {
			if err := device.WriteBlock(reserved+i*fatSize, fat); err != nil {
				t.Fatalf("write fat sector: %v", err)
			}
		}
	}
	return device
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		geometry testGeometry
		wantType FATType
		wantErr  error
	}{
		{
			name:     "fat12 volume is rejected",
			geometry: testGeometry{clusterCount: 4084},
			wantErr:  ErrUnsupportedVolume,
		},
		{
			name:     "smallest fat16 volume",
			geometry: testGeometry{clusterCount: 4085},
			wantType: FAT16,
		},
		{
			name:     "largest fat16 volume",
			geometry: testGeometry{clusterCount: 65524},
			wantType: FAT16,
		},
		{
			name:     "smallest fat32 volume",
			geometry: testGeometry{clusterCount: 65525, fat32: true},
			wantType: FAT32,
		},
		{
			name:     "missing boot signature",
			geometry: testGeometry{clusterCount: 4085, breakSig: true},
			wantErr:  ErrUnsupportedVolume,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := buildTestVolume(t, tt.geometry)
			got, err := New(device)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got.FSType() != tt.wantType {
				t.Errorf("New() FSType = %v, want %v", got.FSType(), tt.wantType)
			}
		})
	}
}

func TestNewSkipChecks(t *testing.T) {
	device := buildTestVolume(t, testGeometry{clusterCount: 4085})
	// Break the jump instruction which only New validates.
	sector := make([]byte, SectorSize)
	if err := device.ReadBlock(0, sector); err != nil {
		t.Fatal(err)
	}
	sector[0] = 0x00
	if err := device.WriteBlock(0, sector); err != nil {
		t.Fatal(err)
	}

	if _, err := New(device); !errors.Is(err, ErrUnsupportedVolume) {
		t.Errorf("New() error = %v, want %v", err, ErrUnsupportedVolume)
	}
	got, err := NewSkipChecks(device)
	if err != nil {
		t.Fatalf("NewSkipChecks() error = %v", err)
	}
	if got.FSType() != FAT16 {
		t.Errorf("NewSkipChecks() FSType = %v, want %v", got.FSType(), FAT16)
	}
}

func Test_fatEntry_Value(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want uint32
	}{
		{name: "free", e: 0, want: 0},
		{name: "cluster", e: 0x1234, want: 0x1234},
		{name: "eof", e: 0xFFFFFFF, want: 0xFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Value(); got != tt.want {
				t.Errorf("fatEntry.Value() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsFree(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "free", e: 0, want: true},
		{name: "reserved temp", e: 1, want: false},
		{name: "cluster", e: 2, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsFree(); got != tt.want {
				t.Errorf("fatEntry.IsFree() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsReservedTemp(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "free", e: 0, want: false},
		{name: "reserved temp", e: 1, want: true},
		{name: "cluster", e: 2, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsReservedTemp(); got != tt.want {
				t.Errorf("fatEntry.IsReservedTemp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsNextCluster(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "free", e: 0, want: false},
		{name: "first cluster", e: 2, want: true},
		{name: "last regular cluster", e: 0xFFFFFEF, want: true},
		{name: "sometimes reserved", e: 0xFFFFFF0, want: false},
		{name: "eof", e: 0xFFFFFF8, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsNextCluster(); got != tt.want {
				t.Errorf("fatEntry.IsNextCluster() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsReservedSometimes(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "last regular cluster", e: 0xFFFFFEF, want: false},
		{name: "start of range", e: 0xFFFFFF0, want: true},
		{name: "end of range", e: 0xFFFFFF5, want: true},
		{name: "reserved", e: 0xFFFFFF6, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsReservedSometimes(); got != tt.want {
				t.Errorf("fatEntry.IsReservedSometimes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsReserved(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "sometimes reserved", e: 0xFFFFFF5, want: false},
		{name: "reserved", e: 0xFFFFFF6, want: true},
		{name: "bad", e: 0xFFFFFF7, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsReserved(); got != tt.want {
				t.Errorf("fatEntry.IsReserved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsBad(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "reserved", e: 0xFFFFFF6, want: false},
		{name: "bad", e: 0xFFFFFF7, want: true},
		{name: "eof", e: 0xFFFFFF8, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsBad(); got != tt.want {
				t.Errorf("fatEntry.IsBad() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_IsEOF(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "bad", e: 0xFFFFFF7, want: false},
		{name: "start of range", e: 0xFFFFFF8, want: true},
		{name: "end of range", e: 0xFFFFFFF, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsEOF(); got != tt.want {
				t.Errorf("fatEntry.IsEOF() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_ReadAsNextCluster(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "free", e: 0, want: false},
		{name: "cluster", e: 2, want: true},
		{name: "sometimes reserved", e: 0xFFFFFF3, want: true},
		{name: "reserved", e: 0xFFFFFF6, want: false},
		{name: "eof", e: 0xFFFFFF8, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.ReadAsNextCluster(); got != tt.want {
				t.Errorf("fatEntry.ReadAsNextCluster() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_fatEntry_ReadAsEOF(t *testing.T) {
	tests := []struct {
		name string
		e    fatEntry
		want bool
	}{
		{name: "cluster", e: 2, want: false},
		{name: "sometimes reserved", e: 0xFFFFFF3, want: false},
		{name: "reserved", e: 0xFFFFFF6, want: true},
		{name: "bad", e: 0xFFFFFF7, want: false},
		{name: "eof", e: 0xFFFFFFF, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.ReadAsEOF(); got != tt.want {
				t.Errorf("fatEntry.ReadAsEOF() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFs_Label(t *testing.T) {
	tests := []struct {
		name     string
		geometry testGeometry
		want     string
	}{
		{
			name:     "fat16 label",
			geometry: testGeometry{clusterCount: 4085, label: "TESTVOLUME"},
			want:     "TESTVOLUME",
		},
		{
			name:     "fat32 label",
			geometry: testGeometry{clusterCount: 65525, fat32: true, label: "BIGVOLUME"},
			want:     "BIGVOLUME",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := New(buildTestVolume(t, tt.geometry))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := fs.Label(); got != tt.want {
				t.Errorf("Fs.Label() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFs_FSType(t *testing.T) {
	tests := []struct {
		name     string
		geometry testGeometry
		want     FATType
	}{
		{name: "fat16", geometry: testGeometry{clusterCount: 10000}, want: FAT16},
		{name: "fat32", geometry: testGeometry{clusterCount: 70000, fat32: true}, want: FAT32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := New(buildTestVolume(t, tt.geometry))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := fs.FSType(); got != tt.want {
				t.Errorf("Fs.FSType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFs_Name(t *testing.T) {
	fs := &Fs{}
	if got := fs.Name(); got != "inkyfs" {
		t.Errorf("Fs.Name() = %v, want inkyfs", got)
	}
}

func TestFs_Rename(t *testing.T) {
	fs := &Fs{}
	if err := fs.Rename("/a", "/b"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fs.Rename() error = %v, want %v", err, ErrNotSupported)
	}
}
