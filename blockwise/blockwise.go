// Package blockwise implements RFC 7959: server-side reassembly of a
// Block1-tagged request body across several datagrams, and slicing of
// an oversized response body into Block2 chunks.
//
// Grounded on the teacher's internal/fifo-backed segmented SDO
// transfer (pkg/sdo/client_segmented.go / client_block.go), which
// accumulates an object's bytes across several CAN frames the same
// way this accumulates a CoAP body across several datagrams. Per-entry
// state here is internal/reassembly.Buffer rather than a raw fifo,
// since Block1 chunks are offset-tagged instead of arriving as a
// contiguous stream (spec.md section 4.5).
package blockwise

import (
	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/internal/reassembly"
	"github.com/contiki-ng/gocoap/message"
)

// key identifies one in-flight Block1 reassembly: the client and the
// token it tagged the transfer with (spec.md section 4.5: reassembly
// is scoped per requester, not globally). The endpoint is held in its
// String() form because endpoint.Endpoint is not a valid map key.
type key struct {
	endpoint string
	token    string
}

// Manager owns every in-flight Block1 reassembly buffer plus the
// preferred chunk size for outbound Block2 slicing.
type Manager struct {
	cfg     config.Config
	buffers map[key]*reassembly.Buffer
}

func New(cfg config.Config) *Manager {
	return &Manager{
		cfg:     cfg,
		buffers: map[key]*reassembly.Buffer{},
	}
}

// Outcome reports what the caller should do after feeding in one
// Block1-tagged request.
type Outcome int

const (
	// Incomplete means the chunk was accepted but more are expected;
	// reply with a 2.31 Continue piggy-backing the same Block1 option.
	Incomplete Outcome = iota
	// Complete means the body returned by Feed is the full request
	// body; dispatch the request to its handler normally.
	Complete
	// OutOfOrder means the transfer was reset; reply 4.08.
	OutOfOrder
	// TooLarge means the aggregate exceeds the configured limit; reply
	// 4.13.
	TooLarge
)

// Feed accepts one Block1-tagged datagram's payload. block is the
// decoded Block1 option from the request. Returns the outcome and, on
// Complete, the full reassembled body.
func (m *Manager) Feed(ep endpoint.Endpoint, token []byte, block message.Block, payload []byte) (Outcome, []byte) {
	k := key{endpoint: ep.String(), token: string(token)}
	buf, ok := m.buffers[k]
	if !ok {
		buf = reassembly.New(m.cfg.MaxReassemblySize)
		m.buffers[k] = buf
	}

	offset := block.Num * block.Size
	if err := buf.Write(offset, payload); err != nil {
		delete(m.buffers, k)
		switch err {
		case reassembly.ErrTooLarge:
			return TooLarge, nil
		default:
			return OutOfOrder, nil
		}
	}

	if block.More {
		return Incomplete, nil
	}

	body := append([]byte(nil), buf.Bytes()...)
	delete(m.buffers, k)
	return Complete, body
}

// Abort discards any in-flight reassembly for (ep, token). The engine
// does not call it; Feed itself drops a buffer on completion or error.
func (m *Manager) Abort(ep endpoint.Endpoint, token []byte) {
	delete(m.buffers, key{endpoint: ep.String(), token: string(token)})
}

// ErrorCode maps an Outcome to the response code the caller should
// send; only meaningful for OutOfOrder and TooLarge.
func ErrorCode(o Outcome) coap.Code {
	switch o {
	case TooLarge:
		return coap.RequestEntityTooLarge
	default:
		return coap.RequestEntityIncomplete
	}
}

// SliceBlock2 extracts block number num of size bytes from a full
// response body, returning the chunk and whether more blocks remain
// (spec.md section 4.5: Block2 response slicing). It does not clamp
// size; the caller passes the smaller of the request's requested size
// and cfg.PreferredBlockSize.
func SliceBlock2(body []byte, num, size int) (chunk []byte, more bool) {
	start := num * size
	if start >= len(body) {
		return nil, false
	}
	end := start + size
	if end >= len(body) {
		return body[start:], false
	}
	return body[start:end], true
}

// PreferredBlockSize returns the manager's configured chunk size for
// outbound Block2 responses.
func (m *Manager) PreferredBlockSize() int {
	return m.cfg.PreferredBlockSize
}
