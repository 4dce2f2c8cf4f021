// Package transport defines the seam between the CoAP engine and the
// host's actual datagram delivery, per spec.md section 1: the engine
// never opens a socket itself, it only calls Send and is fed received
// datagrams through a callback the host wires up.
package transport

import "github.com/contiki-ng/gocoap/endpoint"

// Transport sends one serialized CoAP datagram to a peer. A secure
// (DTLS) transport is expected to implement the identical contract —
// spec.md section 1 describes it as "a SecureTransport variant of
// Transport with identical bytes-in/bytes-out contract" — so no
// separate interface is needed here; Endpoint.Secure is the only signal
// a multiplexing implementation needs to route between the two.
type Transport interface {
	Send(ep endpoint.Endpoint, data []byte) error
}

// ReceiveFunc is how a Transport hands an inbound datagram back to the
// engine. Implementations call it synchronously from whatever goroutine
// reads the socket; the engine itself has no internal concurrency (see
// spec.md section 5), so it is the host's job to serialize calls into it
// if more than one Transport feeds the same Engine.
type ReceiveFunc func(ep endpoint.Endpoint, data []byte)
