// Package observe implements the RFC 7641 extension: a table of
// observers per resource, a monotonic 24-bit sequence counter, and a
// drip-feed notification drain.
//
// Grounded on the teacher's countdown-timer idiom (pdo_tpdo.go's
// process(timeDifferenceUs, timerNextUs, ...)), generalized here into
// Tick(now) the same way transaction.Table.Tick is: no goroutine, no
// real timer, the engine's single Advance(now) entry point drives
// everything (spec.md section 5). The observer bookkeeping itself is
// grounded on coap-observe.c's add_observer / coap_remove_observer_*
// family and its unactive/pending list split (spec.md section 4.4).
package observe

import (
	"log/slog"
	"time"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
)

// NotifyFunc sends one notification to an observer. confirmable
// requests a CON refresh instead of the observer's usual NON/CON
// choice (spec.md section 4.4: "every ObserveRefreshInterval
// notifications sent as CON"). path is the observer's resource URL, so
// the caller can construct the synthetic GET spec.md section 4.4 step 1
// describes.
type NotifyFunc func(ep endpoint.Endpoint, token []byte, path string, seq uint32, confirmable bool) error

// observer is one registered client for one resource path.
type observer struct {
	endpoint endpoint.Endpoint
	token    []byte
	path     string

	notifyCount int // notifications sent since last CON refresh
}

// pendingNotification is one queued, not-yet-sent notification for an
// observer. seq is captured when the entry is queued (NotifyAll time),
// not read live off Table.seq when it eventually drains — two notify()
// calls with no intervening drain must produce two entries carrying two
// different sequence numbers, or the receiver's reorder-discard logic
// (spec.md section 8 testable property 2) can't tell them apart.
type pendingNotification struct {
	observer *observer
	seq      uint32
}

// Table is the observer registry for every observable resource,
// indexed by path. One Table instance serves the whole engine; the
// path is carried per-observer rather than splitting the table per
// resource because notify-all-observers-of-a-resource is the table's
// most common query (spec.md section 4.4: coap_notify_observers_sub).
type Table struct {
	logger *slog.Logger
	cfg    config.Config

	seq uint32 // 24-bit counter, spec.md section 3 "24-bit"

	unactive []*observer             // registered, idle: no notification currently owed
	pending  []*pendingNotification // owed a notification, drained one at a time

	drainAt time.Time // next time Tick should pop the pending queue
}

func New(logger *slog.Logger, cfg config.Config) *Table {
	return &Table{
		logger: logger.With("component", "observe"),
		cfg:    cfg,
	}
}

// Register adds ep/token as an observer of path, replacing any
// existing registration for the same (endpoint, token) pair — RFC
// 7641 section 3.2 treats a fresh Observe=0 request from a known
// client as a re-registration, not a duplicate.
func (t *Table) Register(ep endpoint.Endpoint, token []byte, path string) {
	t.removeLocked(ep, token)
	if len(t.unactive)+len(t.pending) >= t.cfg.MaxObservers {
		t.logger.Warn("observer table full, dropping oldest", "path", path)
		t.evictOldest()
	}
	o := &observer{endpoint: ep, token: append([]byte(nil), token...), path: path}
	t.unactive = append(t.unactive, o)
	t.logger.Debug("registered observer", "endpoint", ep.String(), "path", path)
}

func (t *Table) evictOldest() {
	if len(t.unactive) > 0 {
		t.unactive = t.unactive[1:]
		return
	}
	if len(t.pending) > 0 {
		t.pending = t.pending[1:]
	}
}

// RemoveByToken deregisters the observer matching (endpoint, token) —
// used on an explicit Observe=1 deregistration request.
func (t *Table) RemoveByToken(ep endpoint.Endpoint, token []byte) {
	t.removeLocked(ep, token)
}

// RemoveByClient deregisters every observation held by ep, mirroring
// coap_remove_observer_by_client. The engine does not call it; it is
// there for the application.
func (t *Table) RemoveByClient(ep endpoint.Endpoint) {
	t.unactive = filterSlice(t.unactive, func(o *observer) bool {
		return !o.endpoint.Equal(ep)
	})
	t.pending = filterSlice(t.pending, func(p *pendingNotification) bool {
		return !p.observer.endpoint.Equal(ep)
	})
}

// RemoveByURI deregisters every observer of path — used when a
// resource is deactivated, mirroring coap_remove_observer_by_uri.
func (t *Table) RemoveByURI(path string) {
	t.unactive = filterSlice(t.unactive, func(o *observer) bool { return o.path != path })
	t.pending = filterSlice(t.pending, func(p *pendingNotification) bool { return p.observer.path != path })
}

func (t *Table) removeLocked(ep endpoint.Endpoint, token []byte) {
	match := func(o *observer) bool {
		return o.endpoint.Equal(ep) && string(o.token) == string(token)
	}
	t.unactive = filterSlice(t.unactive, func(o *observer) bool { return !match(o) })
	t.pending = filterSlice(t.pending, func(p *pendingNotification) bool { return !match(p.observer) })
}

func filterSlice[T any](list []T, keep func(T) bool) []T {
	out := list[:0]
	for _, v := range list {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// NextSequence advances and returns the 24-bit counter — call once per
// state change of an observable resource (spec.md section 4.4:
// "coap_notify_observers_sub" increments before notifying).
func (t *Table) NextSequence() uint32 {
	t.seq = (t.seq + 1) & 0xFFFFFF
	return t.seq
}

// CurrentSequence returns the live 24-bit counter without advancing it.
// The registration response carries this value — spec.md section 4.4's
// "Observe=sequence_counter++" is a post-increment: the response gets
// the counter as it stands at registration time, and the bump is left
// to the next actual NextSequence call (the first notify() afterwards),
// matching the concrete scenario in spec.md section 8 ("Server replies
// ACK 2.05 Observe=0" on the very first subscription).
func (t *Table) CurrentSequence() uint32 {
	return t.seq
}

// NotifyAll queues one notification event per observer of path,
// draining one at a time via Tick. Mirrors coap_notify_observers_sub
// walking the observer list and arming a notification for each match.
// Every entry queued by this call captures the counter's current value
// (spec.md section 4.4: the caller is expected to have already bumped
// it via NextSequence for this state change) — captured at enqueue
// time, not read live off Table.seq when the entry eventually drains,
// so two notify() calls queue two entries carrying two different
// sequence numbers even if neither has drained yet.
//
// An observer already mid-drain from an earlier, unacknowledged notify
// gets a second queue entry rather than being skipped: spec.md section
// 8 requires "notify(R); notify(R) with no intervening ACK yields
// exactly two pending entries per matching observer queued, serviced in
// FIFO order" — a pending observer can therefore appear more than once
// in t.pending simultaneously.
func (t *Table) NotifyAll(path string) {
	priorPendingLen := len(t.pending)
	seq := t.seq

	remaining := t.unactive[:0]
	for _, o := range t.unactive {
		if o.path == path {
			t.pending = append(t.pending, &pendingNotification{observer: o, seq: seq})
		} else {
			remaining = append(remaining, o)
		}
	}
	t.unactive = remaining

	for _, p := range t.pending[:priorPendingLen] {
		if p.observer.path == path {
			t.pending = append(t.pending, &pendingNotification{observer: p.observer, seq: seq})
		}
	}
}

// Tick drains one pending notification per call once drainAt has
// elapsed, then rearms at cfg.NotifyDrainInterval — spec.md section
// 4.4's "one notification at a time" pacing, grounded on the
// teacher's countdown-and-rearm idiom.
func (t *Table) Tick(now time.Time, notify NotifyFunc) {
	if len(t.pending) == 0 {
		return
	}
	if !t.drainAt.IsZero() && now.Before(t.drainAt) {
		return
	}

	entry := t.pending[0]
	t.pending = t.pending[1:]
	o := entry.observer

	o.notifyCount++
	confirmable := o.notifyCount >= t.cfg.ObserveRefreshInterval
	if confirmable {
		o.notifyCount = 0
	}

	if err := notify(o.endpoint, o.token, o.path, entry.seq, confirmable); err != nil {
		t.logger.Warn("notification failed", "endpoint", o.endpoint.String(), "err", err)
	}

	if !t.stillPending(o) {
		t.unactive = append(t.unactive, o)
	}
	t.drainAt = now.Add(t.cfg.NotifyDrainInterval)
}

func (t *Table) stillPending(o *observer) bool {
	for _, p := range t.pending {
		if p.observer == o {
			return true
		}
	}
	return false
}

// AcknowledgeRefresh re-arms the drain timer at the shorter
// post-refresh interval (spec.md section 4.4: "rearmed at 1ms after a
// CON notification's ACK arrives" so a burst of pending observers
// isn't throttled by the slower steady-state pacing).
func (t *Table) AcknowledgeRefresh(now time.Time) {
	t.drainAt = now.Add(t.cfg.NotifyDrainIntervalAfterACK)
}

// Count returns the total number of registered observers, for tests
// and diagnostics.
func (t *Table) Count() int {
	return len(t.unactive) + len(t.pending)
}

// HasObserver reports whether ep/token is currently registered on
// path.
func (t *Table) HasObserver(ep endpoint.Endpoint, token []byte, path string) bool {
	match := func(o *observer) bool {
		return o.path == path && o.endpoint.Equal(ep) && string(o.token) == string(token)
	}
	for _, o := range t.unactive {
		if match(o) {
			return true
		}
	}
	for _, p := range t.pending {
		if match(p.observer) {
			return true
		}
	}
	return false
}
