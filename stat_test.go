package inkyfs

import (
	"os"
	"testing"
	"time"
)

func TestEntryHeaderFileInfo(t *testing.T) {
	entry := ExtendedEntryHeader{
		EntryHeader: EntryHeader{
			Name:      [11]byte{'F', 'O', 'O', ' ', ' ', ' ', ' ', ' ', 'T', 'X', 'T'},
			FileSize:  42,
			WriteDate: 17 | 5<<5 | 43<<9,
			WriteTime: 1 | 30<<5 | 10<<11,
		},
	}

	info := entry.FileInfo()
	if info.Name() != "FOO.TXT" {
		t.Errorf("Name() = %v, want FOO.TXT", info.Name())
	}
	if info.Size() != 42 {
		t.Errorf("Size() = %v, want 42", info.Size())
	}
	if info.Mode() != 0o777 {
		t.Errorf("Mode() = %v, want 0777", info.Mode())
	}
	want := time.Date(2023, 5, 17, 10, 30, 2, 0, time.UTC)
	if !info.ModTime().Equal(want) {
		t.Errorf("ModTime() = %v, want %v", info.ModTime(), want)
	}
	if info.IsDir() {
		t.Error("IsDir() = true, want false")
	}
	if _, ok := info.Sys().(ExtendedEntryHeader); !ok {
		t.Errorf("Sys() = %T, want ExtendedEntryHeader", info.Sys())
	}
}

func TestEntryHeaderFileInfo_longName(t *testing.T) {
	entry := ExtendedEntryHeader{
		EntryHeader:  EntryHeader{Name: [11]byte{'A', 'L', 'O', 'N', 'G', 'F', '~', '1', 'T', 'X', 'T'}},
		ExtendedName: "A Long Filename.txt",
	}
	if got := entry.FileInfo().Name(); got != "A Long Filename.txt" {
		t.Errorf("Name() = %v, want the long name", got)
	}
}

func TestEntryHeaderFileInfo_directory(t *testing.T) {
	entry := ExtendedEntryHeader{
		EntryHeader: EntryHeader{
			Name:      [11]byte{'S', 'U', 'B', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
			Attribute: AttrDirectory,
		},
	}
	info := entry.FileInfo()
	if !info.IsDir() {
		t.Error("IsDir() = false, want true")
	}
	if info.Mode() != os.ModeDir|0o777 {
		t.Errorf("Mode() = %v, want %v", info.Mode(), os.ModeDir|0o777)
	}
}

func TestEntryHeaderFileInfo_readOnly(t *testing.T) {
	entry := ExtendedEntryHeader{
		EntryHeader: EntryHeader{
			Name:      [11]byte{'R', 'O', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
			Attribute: AttrReadOnly,
		},
	}
	if got := entry.FileInfo().Mode(); got != 0o555 {
		t.Errorf("Mode() = %v, want 0555", got)
	}
}

func TestEntryHeaderFileInfo_invalidDate(t *testing.T) {
	entry := ExtendedEntryHeader{
		EntryHeader: EntryHeader{Name: [11]byte{'X', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}},
	}
	if got := entry.FileInfo().ModTime(); !got.IsZero() {
		t.Errorf("ModTime() with no date = %v, want the zero time", got)
	}
}
