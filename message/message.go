package message

import (
	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
)

// Type and Code alias the root package's so call sites read as
// message.Type / message.Code without a second import.
type (
	Type = coap.Type
	Code = coap.Code
)

// option is one decoded option: its number and raw value bytes. Options
// are kept in ascending-number, insertion order exactly as they appear
// (or will appear) on the wire.
type option struct {
	Number uint16
	Value  []byte
}

// Message is the in-memory form of a CoAP message: header fields, the
// decoded option list, payload and (for inbound messages) the source
// endpoint. See spec.md section 3 for the full field-by-field contract.
type Message struct {
	Type    Type
	Code    Code
	MID     uint16
	Token   []byte
	Payload []byte
	Source  endpoint.Endpoint

	options []option
}

// New builds an empty message of the given type and code, analogous to
// the teacher's coap_init_message in spirit: zero value everything else,
// caller fills in the rest via the typed setters.
func New(t Type, code Code, mid uint16) *Message {
	return &Message{Type: t, Code: code, MID: mid}
}

// SetToken sets the token, enforcing the 8-byte ceiling from spec.md
// section 3.
func (m *Message) SetToken(token []byte) error {
	if len(token) > 8 {
		return coap.ErrTokenTooLong
	}
	m.Token = append([]byte(nil), token...)
	return nil
}

// addOption appends a raw option, keeping the slice in ascending order by
// number (stable with respect to same-number insertion order) so
// Serialize never has to re-sort.
func (m *Message) addOption(number uint16, value []byte) {
	opt := option{Number: number, Value: value}
	i := len(m.options)
	for i > 0 && m.options[i-1].Number > number {
		i--
	}
	m.options = append(m.options, option{})
	copy(m.options[i+1:], m.options[i:])
	m.options[i] = opt
}

// setSingle replaces every existing instance of number with a single
// option carrying value. Used by non-repeatable typed setters.
func (m *Message) setSingle(number uint16, value []byte) {
	m.removeOption(number)
	m.addOption(number, value)
}

// removeOption drops every option with the given number.
func (m *Message) removeOption(number uint16) {
	kept := m.options[:0]
	for _, o := range m.options {
		if o.Number != number {
			kept = append(kept, o)
		}
	}
	m.options = kept
}

// getFirst returns the first option with the given number, if any.
func (m *Message) getFirst(number uint16) ([]byte, bool) {
	for _, o := range m.options {
		if o.Number == number {
			return o.Value, true
		}
	}
	return nil, false
}

// getAll returns every option with the given number, in wire order.
func (m *Message) getAll(number uint16) [][]byte {
	var out [][]byte
	for _, o := range m.options {
		if o.Number == number {
			out = append(out, o.Value)
		}
	}
	return out
}

// HasOption reports whether an option with the given number is present;
// this is the Go analogue of the teacher's option bitmap (spec.md
// section 3), which a flat scan of a short slice makes unnecessary.
func (m *Message) HasOption(number uint16) bool {
	_, ok := m.getFirst(number)
	return ok
}

// SetPayload replaces the payload. Matches the teacher's set_payload /
// get_payload round-trip invariant (spec.md section 8).
func (m *Message) SetPayload(p []byte) {
	m.Payload = p
}
