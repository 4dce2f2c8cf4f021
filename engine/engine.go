// Package engine glues the codec, transaction table, resource registry,
// observe subsystem and blockwise manager into the single-threaded
// cooperative core spec.md section 5 describes: every state transition
// happens inside a call to OnDatagram or Advance, there is no internal
// goroutine or lock.
//
// Grounded on the teacher's node process loop (pkg/network/network.go's
// receive/process split) and its NMT/heartbeat countdown pattern,
// generalized the same way transaction.Table.Tick and observe.Table.Tick
// already are.
package engine

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/contiki-ng/gocoap/blockwise"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/observe"
	"github.com/contiki-ng/gocoap/registry"
	"github.com/contiki-ng/gocoap/transaction"
	"github.com/contiki-ng/gocoap/transport"
)

// dedupKey identifies one served CON request for spec.md section 5's
// "duplicate CON request ... served from the dedup cache, never
// re-dispatched" rule.
type dedupKey struct {
	endpoint string // endpoint.Endpoint.String(); Endpoint is not a valid map key
	mid      uint16
}

type dedupEntry struct {
	response []byte
	expires  time.Time
}

// periodicTimer arms a registry.Resource's PeriodicHandler at its
// configured interval (spec.md section 4.3, "Periodic resources").
type periodicTimer struct {
	resource *registry.Resource
	next     time.Time
}

// Engine is the host-owned core value spec.md section 9's "process-
// global engine state" design note calls for: no singleton, every entry
// point takes this value explicitly.
type Engine struct {
	logger *slog.Logger
	cfg    config.Config

	transport transport.Transport
	registry  *registry.Registry
	txTable   *transaction.Table
	observers *observe.Table
	blocks    *blockwise.Manager

	rng    *rand.Rand
	midCtr uint16

	dedup map[dedupKey]dedupEntry

	periodics []*periodicTimer

	// pendingSeparate holds the user callback for a request whose
	// response is arriving via the separate-response pattern: the
	// initial empty ACK already cleared the transaction, so the later
	// CON response (same token, new mid) is matched here instead of
	// through the transaction table (spec.md section 4.3).
	pendingSeparate map[string]func(*message.Message)

	clientObs map[string]*clientObservation // keyed by token string
}

// New constructs an Engine bound to tr for outbound datagrams. The host
// is responsible for feeding inbound datagrams to OnDatagram and calling
// Advance whenever its clock moves forward.
func New(logger *slog.Logger, cfg config.Config, tr transport.Transport) *Engine {
	e := &Engine{
		logger:          logger.With("component", "engine"),
		cfg:             cfg,
		transport:       tr,
		registry:        registry.New(logger),
		txTable:         transaction.New(logger, cfg, tr),
		observers:       observe.New(logger, cfg),
		blocks:          blockwise.New(cfg),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		dedup:           map[dedupKey]dedupEntry{},
		pendingSeparate: map[string]func(*message.Message){},
		clientObs:       map[string]*clientObservation{},
	}
	// Start the message id counter at a random value so the engine's own
	// mids do not track the small mids a peer typically starts from.
	e.midCtr = uint16(e.rng.Intn(1 << 16))
	return e
}

// ActivateResource exposes registry.Activate as a host-facing call
// (spec.md section 6: "activate_resource(resource, path)"). If r is
// periodic, its timer is armed now.
func (e *Engine) ActivateResource(r *registry.Resource) {
	e.registry.Activate(r)
	if r.Flags&registry.IsPeriodic != 0 && r.PeriodicInterval > 0 {
		e.periodics = append(e.periodics, &periodicTimer{
			resource: r,
			next:     time.Now().Add(r.PeriodicInterval),
		})
	}
}

// AddHandler exposes registry.AddHandler (spec.md section 6:
// "add_handler(h)").
func (e *Engine) AddHandler(h registry.ChainFunc) {
	e.registry.AddHandler(h)
}

// nextMID hands out a fresh message id for outbound requests and
// server-initiated messages (separate responses, notifications).
func (e *Engine) nextMID() uint16 {
	e.midCtr++
	return e.midCtr
}

func (e *Engine) send(ep endpoint.Endpoint, m *message.Message) ([]byte, error) {
	buf := make([]byte, 2048)
	n, err := message.Serialize(m, buf)
	if err != nil {
		return nil, err
	}
	data := buf[:n]
	if err := e.transport.Send(ep, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Advance is the engine's second entry point (spec.md section 5,
// section 6: "advance(now_ms)"): it drives every armed timer —
// retransmission, observe notification drain, periodic resources.
func (e *Engine) Advance(now time.Time) {
	e.txTable.Tick(now)
	e.observers.Tick(now, e.sendNotification)
	e.tickPeriodics(now)
	e.evictDedup(now)
}

func (e *Engine) tickPeriodics(now time.Time) {
	for _, p := range e.periodics {
		if now.Before(p.next) {
			continue
		}
		p.next = now.Add(p.resource.PeriodicInterval)
		if p.resource.PeriodicHandler != nil {
			p.resource.PeriodicHandler(p.resource)
		}
	}
}

func (e *Engine) evictDedup(now time.Time) {
	for k, v := range e.dedup {
		if now.After(v.expires) {
			delete(e.dedup, k)
		}
	}
}

// LinkFormat renders the activated resource list as a ".well-known/core"
// payload (spec.md section 3).
func (e *Engine) LinkFormat() string {
	return e.registry.LinkFormat()
}

// Notify triggers the observe fan-out for an activated resource's path
// (spec.md section 4.4: "notify(resource, subpath?)"; section 6:
// application calls notify after a state change). A path naming an
// activated resource is normalized the way the registry stores it, so
// "/sensor" and "sensor" reach the same observers.
func (e *Engine) Notify(path string) {
	if r, ok := e.registry.Resolve(path); ok {
		path = r.Path
	}
	e.observers.NextSequence()
	e.observers.NotifyAll(path)
}
