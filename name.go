package inkyfs

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/secfurry/inkyfs/checkpoint"
)

// Name and path limits. A long name is stored in up to 20 fragments of 13
// UTF-16 units each.
const (
	MaxNameLength = 255
	maxPathDepth  = 16
	lfnChars      = 13
)

// ErrNameTooLong is returned for names over MaxNameLength characters and
// paths nested deeper than the supported limit.
var ErrNameTooLong = errors.New("name or path too long")

// normalizePath collapses the path to a clean, slash-rooted form.
func normalizePath(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

// splitPath splits a path into its segments, enforcing the depth and
// per-segment length limits. The root path yields no segments.
func splitPath(path string) ([]string, error) {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	segments := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		if len([]rune(p)) > MaxNameLength {
			return nil, checkpoint.From(ErrNameTooLong)
		}
		segments = append(segments, p)
	}
	if len(segments) > maxPathDepth {
		return nil, checkpoint.From(ErrNameTooLong)
	}
	return segments, nil
}

// shortNameChecksum computes the checksum stored in every long-filename
// fragment, binding the fragments to their 8.3 entry.
func shortNameChecksum(name [11]byte) byte {
	var sum byte
	for _, c := range name {
		sum = ((sum & 1) << 7) + (sum >> 1) + c
	}
	return sum
}

// invalidShortNameChar reports characters that cannot appear in an 8.3 name.
func invalidShortNameChar(r rune) bool {
	if r < 0x20 || r > 0x7E {
		return true
	}
	switch r {
	case '"', '*', '+', ',', '.', '/', ':', ';', '<', '=', '>', '?', '[', '\\', ']', '|':
		return true
	}
	return false
}

// toShortName derives the 8.3 basis name for a long name. The second return
// reports whether information was lost in the conversion, meaning the entry
// needs long-filename fragments and a numeric-tail alias.
func toShortName(name string) ([11]byte, bool) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	lossy := strings.Count(name, ".") > 1 || strings.ContainsRune(name, ' ')
	base = strings.ReplaceAll(base, " ", "")
	ext = strings.ReplaceAll(ext, " ", "")

	upper := strings.ToUpper(base)
	if upper != base {
		lossy = true
	}
	n := 0
	for _, r := range upper {
		if n == 8 {
			lossy = true
			break
		}
		if invalidShortNameChar(r) {
			r, lossy = '_', true
		}
		out[n] = byte(r)
		n++
	}
	upperExt := strings.ToUpper(ext)
	if upperExt != ext {
		lossy = true
	}
	n = 0
	for _, r := range upperExt {
		if n == 3 {
			lossy = true
			break
		}
		if invalidShortNameChar(r) {
			r, lossy = '_', true
		}
		out[8+n] = byte(r)
		n++
	}
	return out, lossy
}

// numericTailAlias builds the "~N" alias variant of a basis name, e.g.
// LONGFI~1 for LONGFILENAME.
func numericTailAlias(base [11]byte, n int) [11]byte {
	out := base
	tail := fmt.Sprintf("~%d", n)
	length := 8
	for length > 0 && out[length-1] == ' ' {
		length--
	}
	if length > 8-len(tail) {
		length = 8 - len(tail)
	}
	copy(out[length:], tail)
	for i := length + len(tail); i < 8; i++ {
		out[i] = ' '
	}
	return out
}

// displayShortName renders an 8.3 name in its dotted form ("FOO.TXT").
func displayShortName(name [11]byte) string {
	base := strings.TrimRight(string(name[0:8]), " ")
	ext := strings.TrimRight(string(name[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Name returns the display name of the entry: the long name when one is
// stored, the dotted 8.3 name otherwise.
func (h *ExtendedEntryHeader) Name() string {
	if h.ExtendedName != "" {
		return h.ExtendedName
	}
	return displayShortName(h.EntryHeader.Name)
}

// lfnOffsets are the byte offsets of the 13 UTF-16 units inside a 32-byte
// long-filename record.
var lfnOffsets = [lfnChars]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// longNameRecords encodes name into raw long-filename records, ordered as
// they appear on disk: last fragment first, each bound to the short entry
// by checksum.
func longNameRecords(name string, checksum byte) [][32]byte {
	units := utf16.Encode([]rune(name))
	count := (len(units) + lfnChars - 1) / lfnChars
	records := make([][32]byte, 0, count)
	for seq := count; seq >= 1; seq-- {
		var rec [32]byte
		rec[0] = byte(seq)
		if seq == count {
			rec[0] |= lastLongEntry
		}
		rec[11] = AttrLongName
		rec[13] = checksum
		for i := 0; i < lfnChars; i++ {
			idx := (seq-1)*lfnChars + i
			var u uint16
			switch {
			case idx < len(units):
				u = units[idx]
			case idx == len(units):
				u = 0x0000
			default:
				u = 0xFFFF
			}
			rec[lfnOffsets[i]] = byte(u)
			rec[lfnOffsets[i]+1] = byte(u >> 8)
		}
		records = append(records, rec)
	}
	return records
}

// lfnAccumulator collects long-filename fragments while scanning a
// directory until the owning short entry arrives.
type lfnAccumulator struct {
	units     [maxLongEntries * lfnChars]uint16
	checksum  byte
	count     int
	active    bool
	locations []entryLocation
}

const maxLongEntries = 20

// add consumes one raw long-filename record. Fragments of a new name reset
// the accumulator, fragments with a diverging checksum invalidate it.
func (a *lfnAccumulator) add(rec []byte, loc entryLocation) {
	seq := int(rec[0] &^ lastLongEntry)
	if seq < 1 || seq > maxLongEntries {
		a.reset()
		return
	}
	if rec[0]&lastLongEntry != 0 || !a.active {
		a.reset()
		a.active = true
		a.checksum = rec[13]
		a.count = seq * lfnChars
	} else if rec[13] != a.checksum {
		a.reset()
		return
	}
	for i := 0; i < lfnChars; i++ {
		a.units[(seq-1)*lfnChars+i] = uint16(rec[lfnOffsets[i]]) | uint16(rec[lfnOffsets[i]+1])<<8
	}
	a.locations = append(a.locations, loc)
}

func (a *lfnAccumulator) reset() {
	a.active = false
	a.count = 0
	a.locations = a.locations[:0]
}

// take finishes the accumulated name for the short entry with the given
// checksum. A checksum mismatch means the fragments belong to some other,
// since rewritten entry. That is corruption, not a name to silently use.
func (a *lfnAccumulator) take(checksum byte) (string, []entryLocation, error) {
	if !a.active {
		return "", nil, nil
	}
	defer a.reset()
	if a.checksum != checksum {
		return "", nil, checkpoint.From(ErrCorruptDirectory)
	}
	units := a.units[:a.count]
	for i, u := range units {
		if u == 0x0000 {
			units = units[:i]
			break
		}
	}
	locations := append([]entryLocation(nil), a.locations...)
	return string(utf16.Decode(units)), locations, nil
}
