package sdcard

import (
	"errors"
	"sync"

	"github.com/secfurry/inkyfs"
	"github.com/secfurry/inkyfs/checkpoint"
)

// SD commands used in SPI mode.
const (
	cmd0   = 0x00 // GO_IDLE_STATE
	cmd8   = 0x08 // SEND_IF_COND
	cmd9   = 0x09 // SEND_CSD
	cmd13  = 0x0D // SEND_STATUS
	cmd16  = 0x10 // SET_BLOCKLEN
	cmd17  = 0x11 // READ_SINGLE_BLOCK
	cmd24  = 0x18 // WRITE_BLOCK
	cmd55  = 0x37 // APP_CMD
	cmd58  = 0x3A // READ_OCR
	cmd59  = 0x3B // CRC_ON_OFF
	acmd41 = 0x29 // SD_SEND_OP_COND
)

const (
	dataToken = 0xFE
	hcsFlag   = 0x40000000
)

// CardType is the detected card generation.
type CardType uint8

// All detected card types. TypeSDHC cards are block addressed, the older
// generations are byte addressed.
const (
	TypeNone CardType = iota
	TypeSD1
	TypeSD2
	TypeSDHC
)

func (t CardType) String() string {
	switch t {
	case TypeSD1:
		return "SD1"
	case TypeSD2:
		return "SD2"
	case TypeSDHC:
		return "SDHC"
	}
	return "none"
}

// Card is an SD card in SPI mode. It implements inkyfs.BlockDevice and
// initializes itself lazily on the first operation.
type Card struct {
	mu       sync.Mutex
	bus      Bus
	typ      CardType
	useCRC   bool
	attempts int
	retries  int
	detect   func() bool
}

// Option configures a Card.
type Option func(*Card)

// WithoutCRC leaves the bus CRC protection off. Only for cards or adapters
// that cannot handle CMD59.
func WithoutCRC() Option {
	return func(c *Card) { c.useCRC = false }
}

// WithAttempts sets the polling budget for busy waits and command
// responses.
func WithAttempts(n int) Option {
	return func(c *Card) { c.attempts = n }
}

// WithReadRetries sets how often a read is repeated after a CRC mismatch
// before giving up.
func WithReadRetries(n int) Option {
	return func(c *Card) { c.retries = n }
}

// WithDetect installs a card-presence probe, usually wired to the
// mechanical switch of the card slot.
func WithDetect(probe func() bool) Option {
	return func(c *Card) { c.detect = probe }
}

// New creates a Card on the given bus. The card is not touched until the
// first operation.
func New(bus Bus, opts ...Option) *Card {
	c := &Card{
		bus:      bus,
		useCRC:   true,
		attempts: 0xFFF,
		retries:  3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ inkyfs.BlockDevice = (*Card)(nil)

// Type returns the detected card generation, TypeNone before the first
// successful init.
func (c *Card) Type() CardType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typ
}

// Init forces card initialization now instead of on the first block
// operation.
func (c *Card) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureInit()
}

// ReadBlock reads the 512-byte block at index into buf. Blocks failing
// their checksum are re-read a bounded number of times.
func (c *Card) ReadBlock(index uint32, buf []byte) error {
	if len(buf) != inkyfs.SectorSize {
		return checkpoint.From(inkyfs.ErrBlockSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureInit(); err != nil {
		return err
	}
	addr, err := c.index(index)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		c.bus.Select()
		err := c.readBlock(buf, addr)
		c.bus.Deselect()
		var ioErr *IOError
		if errors.As(err, &ioErr) && ioErr.Kind == KindCRCMismatch && attempt < c.retries {
			continue
		}
		if err != nil {
			return checkpoint.From(err)
		}
		return nil
	}
}

// WriteBlock writes the 512-byte block data at index, waits for the card
// to finish programming and checks the card status afterwards.
func (c *Card) WriteBlock(index uint32, data []byte) error {
	if len(data) != inkyfs.SectorSize {
		return checkpoint.From(inkyfs.ErrBlockSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureInit(); err != nil {
		return err
	}
	addr, err := c.index(index)
	if err != nil {
		return err
	}
	c.bus.Select()
	err = c.writeBlock(data, addr)
	c.bus.Deselect()
	if err != nil {
		return checkpoint.From(err)
	}
	return nil
}

// Blocks returns the capacity of the card in 512-byte blocks, read from
// the CSD register.
func (c *Card) Blocks() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureInit(); err != nil {
		return 0, err
	}
	var csd [16]byte
	c.bus.Select()
	resp, err := c.cmd(cmd9, 0)
	if err == nil && resp != 0 {
		err = &IOError{Kind: KindBadResponse, Cmd: cmd9}
	}
	if err == nil {
		err = c.read(csd[:])
	}
	c.bus.Deselect()
	if err != nil {
		return 0, checkpoint.From(err)
	}
	return csdBlocks(csd), nil
}

// csdBlocks decodes the card capacity from a raw CSD register.
func csdBlocks(csd [16]byte) uint32 {
	if csd[0]>>6 == 1 {
		// CSD version 2, capacity in 512KiB units.
		size := uint32(csd[7]&0x3F)<<16 | uint32(csd[8])<<8 | uint32(csd[9])
		return (size + 1) * 1024
	}
	readBlockLen := uint32(csd[5] & 0xF)
	size := uint32(csd[6]&0x3)<<10 | uint32(csd[7])<<2 | uint32(csd[8])>>6
	mult := uint32(csd[9]&0x3)<<1 | uint32(csd[10])>>7
	return (size + 1) << (mult + 2 + readBlockLen - 9)
}

// counter bounds polling loops, every wait costs one attempt.
type counter struct {
	cur, hit int
}

func (c *Card) counter() counter {
	return counter{hit: c.attempts}
}

func (c *counter) reset() {
	c.cur = 0
}

func (c *counter) wait(cmd uint8) error {
	if c.cur >= c.hit {
		return &IOError{Kind: KindTimeout, Cmd: cmd}
	}
	c.cur++
	return nil
}

func (c *Card) readByte() (byte, error) {
	b := []byte{0xFF}
	if err := c.bus.Transfer(b); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ensureInit runs the power-up sequence once. A removed card resets the
// detected type so reinsertion triggers a fresh init.
func (c *Card) ensureInit() error {
	if c.detect != nil && !c.detect() {
		c.typ = TypeNone
		return checkpoint.From(ErrNoCard)
	}
	if c.typ != TypeNone {
		return nil
	}
	// At least 74 clocks with the card deselected before the first
	// command.
	clocks := make([]byte, 10)
	for i := range clocks {
		clocks[i] = 0xFF
	}
	c.bus.Deselect()
	if err := c.bus.Transfer(clocks); err != nil {
		return checkpoint.From(err)
	}
	c.bus.Select()
	err := c.init()
	c.bus.Deselect()
	if err != nil {
		c.typ = TypeNone
		return checkpoint.From(err)
	}
	return nil
}

func (c *Card) init() error {
	cnt := c.counter()
	sawReply := false
	for {
		v, err := c.cmd(cmd0, 0)
		var ioErr *IOError
		switch {
		case errors.As(err, &ioErr) && ioErr.Kind == KindTimeout:
			// Cards fresh out of power-up need extra clocks before
			// answering at all.
			gap := make([]byte, 255)
			for i := range gap {
				gap[i] = 0xFF
			}
			if err := c.bus.Transfer(gap); err != nil {
				return err
			}
		case err != nil:
			return err
		case v == 0x01:
			goto idle
		default:
			sawReply = true
		}
		if err := cnt.wait(cmd0); err != nil {
			if sawReply {
				// The card answers but refuses to go idle. Power
				// cycling is the only way out, retrying is pointless.
				return ErrNeverIdle
			}
			return ErrInitTimeout
		}
	}
idle:
	if c.useCRC {
		v, err := c.cmd(cmd59, 0x1)
		if err != nil {
			return err
		}
		if v != 0x01 {
			return &IOError{Kind: KindBadResponse, Cmd: cmd59}
		}
	}

	cnt.reset()
	var arg uint32
	for {
		v, err := c.cmd(cmd8, 0x1AA)
		if err != nil {
			return err
		}
		if v == 0x05 {
			// Illegal command, the card predates CMD8.
			c.typ = TypeSD1
			break
		}
		echo := []byte{0xFF, 0xFF, 0xFF, 0xFF}
		if err := c.bus.Transfer(echo); err != nil {
			return err
		}
		if echo[3] == 0xAA {
			c.typ = TypeSD2
			arg = hcsFlag
			break
		}
		if err := cnt.wait(cmd8); err != nil {
			return ErrInitTimeout
		}
	}

	cnt.reset()
	for {
		v, err := c.cmdApp(acmd41, arg)
		if err != nil {
			return err
		}
		if v == 0 {
			break
		}
		if err := cnt.wait(acmd41); err != nil {
			return ErrInitTimeout
		}
	}

	if c.typ == TypeSD2 {
		v, err := c.cmd(cmd58, 0)
		if err != nil {
			return err
		}
		if v != 0 {
			return &IOError{Kind: KindBadResponse, Cmd: cmd58}
		}
		ocr := []byte{0xFF, 0xFF, 0xFF, 0xFF}
		if err := c.bus.Transfer(ocr); err != nil {
			return err
		}
		if ocr[0]&0xC0 == 0xC0 {
			c.typ = TypeSDHC
		}
		if _, err := c.readByte(); err != nil {
			return err
		}
	}

	if c.typ != TypeSDHC {
		// Byte-addressed cards may default to another block length.
		v, err := c.cmd(cmd16, inkyfs.SectorSize)
		if err != nil {
			return err
		}
		if v != 0 {
			return &IOError{Kind: KindBadResponse, Cmd: cmd16}
		}
	}
	return nil
}

// index maps a block index onto the address format of the card: block
// numbers for SDHC, byte offsets for the older generations.
func (c *Card) index(block uint32) (uint32, error) {
	switch c.typ {
	case TypeSDHC:
		return block, nil
	case TypeSD1, TypeSD2:
		return block * inkyfs.SectorSize, nil
	}
	return 0, checkpoint.From(ErrInitTimeout)
}

// waitBusy polls until the card releases the data line.
func (c *Card) waitBusy(cmd uint8) error {
	cnt := c.counter()
	for {
		v, err := c.readByte()
		if err != nil {
			return err
		}
		if v == 0xFF {
			return nil
		}
		if err := cnt.wait(cmd); err != nil {
			return err
		}
	}
}

// cmd sends a single command frame and polls for its R1 response.
func (c *Card) cmd(x uint8, arg uint32) (byte, error) {
	if x != cmd0 {
		if err := c.waitBusy(x); err != nil {
			return 0, err
		}
	}
	frame := []byte{
		0x40 | x,
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
		0,
	}
	frame[5] = crc7(frame[0:5])
	if err := c.bus.Transfer(frame); err != nil {
		return 0, err
	}
	cnt := c.counter()
	for {
		v, err := c.readByte()
		if err != nil {
			return 0, err
		}
		if v&0x80 == 0 {
			return v, nil
		}
		if err := cnt.wait(x); err != nil {
			return 0, err
		}
	}
}

func (c *Card) cmdApp(x uint8, arg uint32) (byte, error) {
	if _, err := c.cmd(cmd55, 0); err != nil {
		return 0, err
	}
	return c.cmd(x, arg)
}

// read waits for the data token and receives one data block plus its
// checksum.
func (c *Card) read(b []byte) error {
	cnt := c.counter()
	for {
		v, err := c.readByte()
		if err != nil {
			return err
		}
		if v == dataToken {
			break
		}
		if v != 0xFF {
			return &IOError{Kind: KindBadResponse, Cmd: cmd17}
		}
		if err := cnt.wait(cmd17); err != nil {
			return err
		}
	}
	for i := range b {
		b[i] = 0xFF
	}
	if err := c.bus.Transfer(b); err != nil {
		return err
	}
	sum := []byte{0xFF, 0xFF}
	if err := c.bus.Transfer(sum); err != nil {
		return err
	}
	if !c.useCRC {
		return nil
	}
	if crc16(b) != uint16(sum[0])<<8|uint16(sum[1]) {
		return &IOError{Kind: KindCRCMismatch, Cmd: cmd17}
	}
	return nil
}

func (c *Card) readBlock(b []byte, addr uint32) error {
	v, err := c.cmd(cmd17, addr)
	if err != nil {
		return err
	}
	if v != 0 {
		return &IOError{Kind: KindBadResponse, Cmd: cmd17}
	}
	return c.read(b)
}

// writeBlock sends one data block and verifies the card accepted and
// programmed it.
func (c *Card) writeBlock(b []byte, addr uint32) error {
	v, err := c.cmd(cmd24, addr)
	if err != nil {
		return err
	}
	if v != 0 {
		return &IOError{Kind: KindBadResponse, Cmd: cmd24}
	}
	token := []byte{dataToken}
	if err := c.bus.Transfer(token); err != nil {
		return err
	}
	data := make([]byte, len(b))
	copy(data, b)
	if err := c.bus.Transfer(data); err != nil {
		return err
	}
	sum := []byte{0xFF, 0xFF}
	if c.useCRC {
		crc := crc16(b)
		sum[0], sum[1] = byte(crc>>8), byte(crc)
	}
	if err := c.bus.Transfer(sum); err != nil {
		return err
	}
	resp, err := c.readByte()
	if err != nil {
		return err
	}
	if resp&0x1F != 0x05 {
		return &IOError{Kind: KindWriteRejected, Cmd: cmd24}
	}
	if err := c.waitBusy(cmd24); err != nil {
		return err
	}
	// The data response only acknowledges receipt, CMD13 reports whether
	// programming actually succeeded.
	v, err = c.cmd(cmd13, 0)
	if err != nil {
		return err
	}
	second, err := c.readByte()
	if err != nil {
		return err
	}
	if v != 0 || second != 0 {
		return &IOError{Kind: KindWriteRejected, Cmd: cmd13}
	}
	return nil
}
