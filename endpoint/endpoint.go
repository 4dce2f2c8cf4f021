// Package endpoint identifies a CoAP peer. It plays the role the
// teacher's CAN identifier / bus-address value types play for a frame:
// a small value struct copied freely into transactions and observers,
// never shared by pointer. Compare endpoints with Equal: the net.IP
// field is a slice, so Endpoint is not comparable with == and cannot be
// a map key (map keys use String() instead).
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is transport-agnostic: it names a peer by IP, UDP port and
// whether traffic to it must go over the secure (DTLS) transport, per
// spec.md section 3. Equality compares all three fields.
type Endpoint struct {
	Addr   net.IP
	Port   uint16
	Secure bool
}

// New builds an Endpoint from an address and port.
func New(addr net.IP, port uint16, secure bool) Endpoint {
	return Endpoint{Addr: addr, Port: port, Secure: secure}
}

// Equal reports whether two endpoints name the same peer.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Port == o.Port && e.Secure == o.Secure && e.Addr.Equal(o.Addr)
}

// String renders coap://host:port or coaps://host:port.
func (e Endpoint) String() string {
	scheme := "coap"
	if e.Secure {
		scheme = "coaps"
	}
	host := e.Addr.String()
	if e.Addr.To4() == nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, e.Port)
}

// Parse reads back what String produces, e.g. "coap://10.0.0.1:5683".
func Parse(s string) (Endpoint, error) {
	var secure bool
	switch {
	case strings.HasPrefix(s, "coaps://"):
		secure = true
		s = s[len("coaps://"):]
	case strings.HasPrefix(s, "coap://"):
		s = s[len("coap://"):]
	default:
		return Endpoint{}, fmt.Errorf("endpoint: missing coap:// or coaps:// scheme in %q", s)
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: %w", err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid IP %q", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid port %q: %w", portStr, err)
	}
	return Endpoint{Addr: ip, Port: uint16(port), Secure: secure}, nil
}

// FromUDPAddr builds an Endpoint from a resolved net.UDPAddr, as returned
// by a transport.Transport implementation on datagram receipt.
func FromUDPAddr(addr *net.UDPAddr, secure bool) Endpoint {
	return Endpoint{Addr: addr.IP, Port: uint16(addr.Port), Secure: secure}
}

// UDPAddr converts back for handing to net.UDPConn.WriteTo / DialUDP.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.Addr, Port: int(e.Port)}
}
