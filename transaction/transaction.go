// Package transaction is the reliable-transport layer from spec.md
// section 4.2: a bounded table of in-flight outbound messages, keyed by
// (endpoint, mid), owning retransmission timing. Deduplication of
// inbound requests is done by the engine's dedup cache, not here.
//
// Unlike the teacher's intrusive memb/list pool (coap-transactions.c),
// this is a fixed-capacity arena indexed by a compact Handle — the
// re-architecture spec.md section 9 calls for explicitly. Unlike the
// teacher's coap_timer callbacks, retransmission is driven by the
// engine calling Tick(now) from its single Advance entry point
// (spec.md section 5): there is no internal goroutine or real timer
// here, matching the engine's single-threaded cooperative model.
package transaction

import (
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/transport"
)

// ErrTableFull is returned by NewTransaction when every slot is occupied — spec.md
// section 4.2: "new returning null maps to a caller-visible error".
var ErrTableFull = errors.New("transaction: table full")

// Handle identifies a slot in the arena: the slot's index, starting at
// 0. Negative values are invalid; only handles returned by
// NewTransaction should be used.
type Handle int

const invalidHandle Handle = -1

// ResponseFunc is invoked exactly once per transaction: with the
// carrying message on ACK/RST/response delivery, or with nil on final
// retransmission timeout (spec.md section 4.2).
type ResponseFunc func(resp *message.Message)

type slot struct {
	inUse       bool
	endpoint    endpoint.Endpoint
	mid         uint16
	token       []byte
	confirmable bool
	data        []byte
	callback    ResponseFunc

	retransCounter  int
	retransInterval time.Duration
	nextRetransmit  time.Time
}

// Table is the transaction arena. Not safe for concurrent use beyond the
// single-threaded contract spec.md section 5 describes for the whole
// engine.
type Table struct {
	logger    *slog.Logger
	cfg       config.Config
	transport transport.Transport
	rng       *rand.Rand
	slots     []slot
}

// New constructs a table with capacity cfg.MaxOpenTransactions.
func New(logger *slog.Logger, cfg config.Config, tr transport.Transport) *Table {
	return &Table{
		logger:    logger.With("component", "transaction"),
		cfg:       cfg,
		transport: tr,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		slots:     make([]slot, cfg.MaxOpenTransactions),
	}
}

// NewTransaction allocates a slot for an outbound message addressed to
// ep with the given message id. Returns ErrTableFull if every slot is
// occupied.
func (t *Table) NewTransaction(ep endpoint.Endpoint, mid uint16) (Handle, error) {
	for i := range t.slots {
		if !t.slots[i].inUse {
			t.slots[i] = slot{inUse: true, endpoint: ep, mid: mid}
			return Handle(i), nil
		}
	}
	return invalidHandle, ErrTableFull
}

// Send serializes behavior: for a confirmable message it sends once now
// and arms the first retransmission at a jittered interval in
// [AckTimeout, AckTimeout*AckRandomFactor]; for a non-confirmable message
// it sends once and releases the slot immediately (spec.md section 4.2).
func (t *Table) Send(h Handle, confirmable bool, token, data []byte, cb ResponseFunc) error {
	s := t.get(h)
	if s == nil {
		return errors.New("transaction: invalid handle")
	}
	s.token = token
	s.data = data
	s.confirmable = confirmable
	s.callback = cb

	t.transmit(s)

	if !confirmable {
		t.Clear(h)
		return nil
	}

	window := time.Duration(float64(t.cfg.AckTimeout) * (t.cfg.AckRandomFactor - 1))
	jitter := time.Duration(0)
	if window > 0 {
		jitter = time.Duration(t.rng.Int63n(int64(window)))
	}
	s.retransInterval = t.cfg.AckTimeout + jitter
	s.retransCounter = 0
	s.nextRetransmit = time.Now().Add(s.retransInterval)
	t.logger.Debug("armed retransmission", "mid", s.mid, "interval", s.retransInterval)
	return nil
}

func (t *Table) transmit(s *slot) {
	if err := t.transport.Send(s.endpoint, s.data); err != nil {
		t.logger.Warn("send failed", "mid", s.mid, "endpoint", s.endpoint.String(), "err", err)
	}
}

// Tick drives retransmission. The engine calls this from Advance(now);
// it is the only place transactions move forward in time.
func (t *Table) Tick(now time.Time) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.inUse || !s.confirmable || s.nextRetransmit.IsZero() || now.Before(s.nextRetransmit) {
			continue
		}
		s.retransCounter++
		if s.retransCounter > t.cfg.MaxRetransmit {
			cb := s.callback
			t.logger.Debug("retransmission exhausted", "mid", s.mid)
			t.Clear(Handle(i))
			if cb != nil {
				cb(nil)
			}
			continue
		}
		t.transmit(s)
		s.retransInterval *= 2
		s.nextRetransmit = now.Add(s.retransInterval)
	}
}

// NextDeadline returns the earliest pending retransmission time across
// all open transactions, for a host that wants to schedule its next
// Advance call precisely instead of polling.
func (t *Table) NextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	for i := range t.slots {
		s := &t.slots[i]
		if !s.inUse || !s.confirmable || s.nextRetransmit.IsZero() {
			continue
		}
		if !found || s.nextRetransmit.Before(best) {
			best = s.nextRetransmit
			found = true
		}
	}
	return best, found
}

// FindByMID looks up an open transaction by (endpoint, mid), used to
// match an inbound ACK, RST or response (spec.md section 4.2, 4.3).
func (t *Table) FindByMID(ep endpoint.Endpoint, mid uint16) (Handle, bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.inUse && s.mid == mid && s.endpoint.Equal(ep) {
			return Handle(i), true
		}
	}
	return invalidHandle, false
}

// Deliver matches an inbound ACK/RST/response to its transaction,
// invoking the callback once and clearing the slot.
func (t *Table) Deliver(h Handle, resp *message.Message) {
	s := t.get(h)
	if s == nil {
		return
	}
	cb := s.callback
	t.Clear(h)
	if cb != nil {
		cb(resp)
	}
}

// Clear stops a transaction's retransmission and drops its callback
// without invoking it — the transaction-layer equivalent of the
// teacher's coap_clear_transaction, used by the engine when a
// transaction's outcome is decided some other way (e.g. the caller gave
// up on it).
func (t *Table) Clear(h Handle) {
	if h < 0 || int(h) >= len(t.slots) {
		return
	}
	t.slots[h] = slot{}
}

// Token returns the token captured for a still-open transaction. The
// engine does not call it; separate-response continuations take the
// token from the request itself.
func (t *Table) Token(h Handle) ([]byte, bool) {
	s := t.get(h)
	if s == nil {
		return nil, false
	}
	return s.token, true
}

func (t *Table) get(h Handle) *slot {
	if h < 0 || int(h) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h]
	if !s.inUse {
		return nil
	}
	return s
}
