package message

import (
	"encoding/binary"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
)

const (
	headerSize   = 4
	extByte13    = 13
	extByte14    = 14
	extReserved  = 15
	ext13Offset  = 13
	ext14Offset  = 269
)

// Parse decodes a datagram received from src into a Message, per spec.md
// section 4.1. A malformed datagram returns coap.ErrFormatError; an
// otherwise well-formed message carrying an unrecognized critical option
// returns coap.ErrBadOption — the engine maps the two to different wire
// responses (RST vs 4.02), so callers should distinguish them with
// errors.Is rather than treating any error the same way.
func Parse(data []byte, src endpoint.Endpoint) (*Message, error) {
	if len(data) < headerSize {
		return nil, coap.ErrFormatError
	}
	if data[0]>>6 != coap.Version {
		return nil, coap.ErrFormatError
	}
	typ := coap.Type((data[0] >> 4) & 0x3)
	tkl := int(data[0] & 0xF)
	if tkl > coap.MaxTokenLength {
		return nil, coap.ErrFormatError
	}
	code := coap.Code(data[1])
	mid := binary.BigEndian.Uint16(data[2:4])

	pos := headerSize
	if pos+tkl > len(data) {
		return nil, coap.ErrFormatError
	}
	token := append([]byte(nil), data[pos:pos+tkl]...)
	pos += tkl

	m := &Message{Type: typ, Code: code, MID: mid, Token: token, Source: src}

	var lastNumber uint16
	var badOption bool

	for pos < len(data) {
		if data[pos] == 0xFF {
			pos++
			if pos >= len(data) {
				return nil, coap.ErrFormatError
			}
			m.Payload = append([]byte(nil), data[pos:]...)
			pos = len(data)
			break
		}

		deltaNibble := data[pos] >> 4
		lengthNibble := data[pos] & 0xF
		pos++
		if deltaNibble == extReserved || lengthNibble == extReserved {
			return nil, coap.ErrFormatError
		}

		delta, newPos, err := readExtension(deltaNibble, data, pos)
		if err != nil {
			return nil, err
		}
		pos = newPos

		length, newPos, err := readExtension(lengthNibble, data, pos)
		if err != nil {
			return nil, err
		}
		pos = newPos

		if pos+int(length) > len(data) {
			return nil, coap.ErrFormatError
		}
		number := lastNumber + uint16(delta)
		value := data[pos : pos+int(length)]
		pos += int(length)
		lastNumber = number

		if !isRecognized(number) {
			if isCritical(number) {
				badOption = true
			}
			continue
		}
		m.addOption(number, append([]byte(nil), value...))
	}

	if badOption {
		return nil, coap.ErrBadOption
	}
	return m, nil
}

// readExtension decodes one delta or length nibble, consuming the 0, 1 or
// 2 extension bytes RFC 7252 section 3.1 defines for nibble values 13/14.
func readExtension(nibble byte, data []byte, pos int) (uint32, int, error) {
	switch {
	case nibble < extByte13:
		return uint32(nibble), pos, nil
	case nibble == extByte13:
		if pos >= len(data) {
			return 0, pos, coap.ErrFormatError
		}
		return uint32(data[pos]) + ext13Offset, pos + 1, nil
	default: // == extByte14
		if pos+1 >= len(data) {
			return 0, pos, coap.ErrFormatError
		}
		return uint32(binary.BigEndian.Uint16(data[pos:pos+2])) + ext14Offset, pos + 2, nil
	}
}

// Serialize writes m into buf in ascending option order and returns the
// number of bytes written. buf is the shared transmit buffer described in
// spec.md section 5 ("The transmit buffer is shared across
// serialization"); the caller owns its lifetime and must consume it
// before the next Serialize call.
func Serialize(m *Message, buf []byte) (int, error) {
	if len(m.Token) > coap.MaxTokenLength {
		return 0, coap.ErrTokenTooLong
	}
	need := headerSize + len(m.Token)
	if need > len(buf) {
		return 0, coap.ErrTruncated
	}

	buf[0] = (coap.Version << 6) | (byte(m.Type) << 4) | byte(len(m.Token))
	buf[1] = byte(m.Code)
	binary.BigEndian.PutUint16(buf[2:4], m.MID)
	n := headerSize
	n += copy(buf[n:], m.Token)

	var lastNumber uint16
	for _, o := range m.options {
		delta := o.Number - lastNumber
		lastNumber = o.Number
		written, err := writeOption(buf[n:], delta, o.Value)
		if err != nil {
			return 0, err
		}
		n += written
	}

	if len(m.Payload) > 0 {
		if n+1+len(m.Payload) > len(buf) {
			return 0, coap.ErrTruncated
		}
		buf[n] = 0xFF
		n++
		n += copy(buf[n:], m.Payload)
	}

	return n, nil
}

func writeOption(buf []byte, delta uint16, value []byte) (int, error) {
	deltaNibble, deltaExt := splitExtension(uint32(delta))
	lengthNibble, lengthExt := splitExtension(uint32(len(value)))

	need := 1 + len(deltaExt) + len(lengthExt) + len(value)
	if need > len(buf) {
		return 0, coap.ErrTruncated
	}

	buf[0] = deltaNibble<<4 | lengthNibble
	n := 1
	n += copy(buf[n:], deltaExt)
	n += copy(buf[n:], lengthExt)
	n += copy(buf[n:], value)
	return n, nil
}

// splitExtension is the serializer-side inverse of readExtension.
func splitExtension(v uint32) (nibble byte, ext []byte) {
	switch {
	case v < extByte13:
		return byte(v), nil
	case v < ext14Offset:
		return extByte13, []byte{byte(v - ext13Offset)}
	default:
		rest := v - ext14Offset
		return extByte14, []byte{byte(rest >> 8), byte(rest)}
	}
}
