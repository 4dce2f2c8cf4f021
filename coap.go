// Package coap holds the wire-level vocabulary shared by every layer of
// the engine: message types, response/request codes and the handful of
// protocol constants defined in RFC 7252 that more than one subpackage
// needs to agree on.
package coap

import "fmt"

// Type is the CoAP message type carried in the two T bits of the header.
type Type uint8

const (
	TypeConfirmable    Type = 0
	TypeNonConfirmable Type = 1
	TypeAcknowledgement Type = 2
	TypeReset           Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeConfirmable:
		return "CON"
	case TypeNonConfirmable:
		return "NON"
	case TypeAcknowledgement:
		return "ACK"
	case TypeReset:
		return "RST"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Code is the 8-bit method/response code, class in the upper 3 bits and
// detail in the lower 5, per RFC 7252 section 3.
type Code uint8

func NewCode(class, detail uint8) Code {
	return Code((class << 5) | (detail & 0x1f))
}

func (c Code) Class() uint8  { return uint8(c) >> 5 }
func (c Code) Detail() uint8 { return uint8(c) & 0x1f }

func (c Code) String() string {
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// IsRequest reports whether the code is a request method (class 0, detail != 0).
func (c Code) IsRequest() bool { return c.Class() == 0 && c.Detail() != 0 }

// IsEmpty reports the reserved 0.00 code used for empty ACK/RST messages.
func (c Code) IsEmpty() bool { return c == CodeEmpty }

// IsResponse reports whether the code is a response (class >= 2).
func (c Code) IsResponse() bool { return c.Class() >= 2 }

// Request method codes.
const (
	CodeEmpty Code = 0

	CodeGET    = Code(1)
	CodePOST   = Code(2)
	CodePUT    = Code(3)
	CodeDELETE = Code(4)
)

// Response codes, named after the RFC mnemonic, with the dotted
// class.detail form in a trailing comment.
const (
	Created               Code = 0x41 // 2.01
	Deleted               Code = 0x42 // 2.02
	Valid                 Code = 0x43 // 2.03
	Changed               Code = 0x44 // 2.04
	Content               Code = 0x45 // 2.05
	Continue              Code = 0x5f // 2.31

	BadRequest           Code = 0x80 // 4.00
	Unauthorized         Code = 0x81 // 4.01
	BadOption            Code = 0x82 // 4.02
	Forbidden            Code = 0x83 // 4.03
	NotFound             Code = 0x84 // 4.04
	MethodNotAllowed     Code = 0x85 // 4.05
	NotAcceptable        Code = 0x86 // 4.06
	RequestEntityIncomplete Code = 0x88 // 4.08
	PreconditionFailed   Code = 0x8c // 4.12
	RequestEntityTooLarge   Code = 0x8d // 4.13
	UnsupportedContentFormat Code = 0x8f // 4.15

	InternalServerError Code = 0xa0 // 5.00
	NotImplemented      Code = 0xa1 // 5.01
	BadGateway          Code = 0xa2 // 5.02
	ServiceUnavailable  Code = 0xa3 // 5.03
	GatewayTimeout      Code = 0xa4 // 5.04
	ProxyingNotSupported Code = 0xa5 // 5.05
)

// Default UDP ports, RFC 7252 section 12.9.
const (
	DefaultPort       = 5683
	DefaultSecurePort = 5684
)

// Protocol-wide numeric ceilings. These are not tunable: they come from
// the header layout itself, not from local policy (see internal/config
// for the values that are).
const (
	MaxTokenLength = 8
	Version        = 1
)
