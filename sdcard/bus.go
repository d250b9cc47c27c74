// Package sdcard drives an SD card in SPI mode and exposes it as a block
// device usable with inkyfs. It speaks the SPI subset of the SD protocol:
// single-block reads and writes with CRC protection, no multi-block
// streaming.
package sdcard

import (
	"errors"
	"fmt"
)

// Bus is the SPI transport below the card: chip-select control plus
// full-duplex byte transfers. Implementations wrap whatever SPI driver the
// target platform provides.
type Bus interface {
	// Select asserts the chip-select line of the card.
	Select()
	// Deselect releases the chip-select line.
	Deselect()
	// Transfer clocks every byte of p out on the bus and replaces it with
	// the byte read back at the same time.
	Transfer(p []byte) error
}

// Errors reported while talking to the card.
var (
	// ErrNoCard is returned when the presence detect reports no card.
	ErrNoCard = errors.New("no card present")
	// ErrInitTimeout is returned when the card does not finish its
	// power-up sequence within the attempt budget. Retrying later can
	// succeed, cards are slow to start after power-on.
	ErrInitTimeout = errors.New("card initialization timed out")
	// ErrNeverIdle is returned when the card responds but never reaches
	// the idle state. Such cards are stuck until power cycled, retrying
	// the init will not help. It matches ErrInitTimeout in errors.Is.
	ErrNeverIdle = fmt.Errorf("card never reached idle state: %w", ErrInitTimeout)
)

// IOErrorKind classifies a failed block transfer.
type IOErrorKind uint8

const (
	// KindTimeout means the card stopped answering mid-transfer.
	KindTimeout IOErrorKind = iota
	// KindCRCMismatch means the data arrived but its checksum did not
	// match, even after retries.
	KindCRCMismatch
	// KindWriteRejected means the card refused or failed to program the
	// written data.
	KindWriteRejected
	// KindBadResponse means the card answered a command with an
	// unexpected status.
	KindBadResponse
)

func (k IOErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCRCMismatch:
		return "crc mismatch"
	case KindWriteRejected:
		return "write rejected"
	case KindBadResponse:
		return "bad response"
	}
	return "unknown"
}

// IOError is a failed block transfer. The caller can drop the handle or
// retry at a higher level, the card itself is left deselected.
type IOError struct {
	Kind IOErrorKind
	Cmd  uint8
}

func (e *IOError) Error() string {
	return fmt.Sprintf("block transfer failed: %s (cmd %d)", e.Kind, e.Cmd)
}
