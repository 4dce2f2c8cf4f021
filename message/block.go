package message

import "github.com/contiki-ng/gocoap"

// Block describes a decoded Block1/Block2 option value: block number,
// whether more blocks follow, and the block size in bytes (always a
// power of two in [16, 1024], per spec.md section 4.1).
type Block struct {
	Num  int
	More bool
	Size int
}

// szxToSize and sizeToSzx implement "size = 1 << (szx + 4)" from spec.md
// section 4.1, with the reverse lookup guarded so an unsupported size is
// an error on encode, not a silently wrong SZX.
func szxToSize(szx uint32) int {
	return 1 << (szx + 4)
}

func sizeToSzx(size int) (uint32, bool) {
	for szx := uint32(0); szx <= 6; szx++ {
		if szxToSize(szx) == size {
			return szx, true
		}
	}
	return 0, false
}

// EncodeBlock packs (num, more, size) into the 20-bit Block1/Block2
// option value described in spec.md section 4.1:
// (num << 4) | (more ? 8 : 0) | szx.
func EncodeBlock(b Block) (uint32, error) {
	szx, ok := sizeToSzx(b.Size)
	if !ok {
		return 0, coap.ErrBlockSize
	}
	if b.Num < 0 || b.Num > 0xFFFFF {
		return 0, coap.ErrIllegalArgument
	}
	v := uint32(b.Num)<<4 | szx
	if b.More {
		v |= 0x8
	}
	return v, nil
}

// DecodeBlock is the inverse of EncodeBlock. SZX=7 is reserved (RFC
// 7959 section 2.2); spec.md section 4.1 says a size outside [16,1024]
// is an error on both encode and decode, so it is rejected here rather
// than silently decoded as size 2048.
func DecodeBlock(v uint32) (Block, error) {
	szx := v & 0x7
	if szx == 7 {
		return Block{}, coap.ErrBlockSize
	}
	size := szxToSize(szx)
	return Block{
		Num:  int(v >> 4),
		More: v&0x8 != 0,
		Size: size,
	}, nil
}

// Block1 reads the Block1 option, if present.
func (m *Message) Block1() (Block, bool) {
	return m.readBlock(OptionBlock1)
}

// SetBlock1 sets the Block1 option.
func (m *Message) SetBlock1(b Block) error {
	return m.writeBlock(OptionBlock1, b)
}

// Block2 reads the Block2 option, if present.
func (m *Message) Block2() (Block, bool) {
	return m.readBlock(OptionBlock2)
}

// SetBlock2 sets the Block2 option.
func (m *Message) SetBlock2(b Block) error {
	return m.writeBlock(OptionBlock2, b)
}

func (m *Message) readBlock(number uint16) (Block, bool) {
	raw, ok := m.getFirst(number)
	if !ok {
		return Block{}, false
	}
	v := decodeUint(raw)
	b, err := DecodeBlock(v)
	if err != nil {
		return Block{}, false
	}
	return b, true
}

func (m *Message) writeBlock(number uint16, b Block) error {
	v, err := EncodeBlock(b)
	if err != nil {
		return err
	}
	m.setSingle(number, encodeUint(v))
	return nil
}
