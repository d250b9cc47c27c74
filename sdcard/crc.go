package sdcard

// crc7 computes the 7-bit command checksum, shifted left with the end bit
// set as it is transmitted on the wire.
func crc7(b []byte) byte {
	var r byte
	for _, i := range b {
		v := i
		for bit := 0; bit < 8; bit++ {
			r <<= 1
			if (v&0x80)^(r&0x80) != 0 {
				r ^= 0x09
			}
			v <<= 1
		}
	}
	return (r << 1) | 1
}

// crc16 computes the CCITT checksum protecting data blocks.
func crc16(b []byte) uint16 {
	var r uint16
	for _, i := range b {
		r = (r>>8)&0xFF | r<<8
		r ^= uint16(i)
		r ^= (r & 0xFF) >> 4
		r ^= r << 12
		r ^= (r & 0xFF) << 5
	}
	return r
}
