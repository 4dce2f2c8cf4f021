package engine

import (
	"errors"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/transaction"
)

// ErrObservationNotFound is returned by RemoveObservation for an
// unknown token.
var ErrObservationNotFound = errors.New("engine: no such observation")

// clientObservation tracks a notification stream this host is observing
// on a remote resource (spec.md section 6: "register_observation").
type clientObservation struct {
	token    []byte
	endpoint endpoint.Endpoint
	callback func(*message.Message)

	haveSeq bool
	lastSeq uint32
}

// SendRequest exposes the transaction table to the host as a single
// request/response call (spec.md section 6: "send_request(endpoint,
// request, callback) -> ticket"). It assigns a fresh mid, arms the
// transaction and transparently absorbs the separate-response pattern:
// an empty placeholder ACK is not forwarded to cb, only the eventual
// real response is.
func (e *Engine) SendRequest(ep endpoint.Endpoint, req *message.Message, cb func(resp *message.Message)) (transaction.Handle, error) {
	mid := e.nextMID()
	req.MID = mid

	h, err := e.txTable.NewTransaction(ep, mid)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 2048)
	n, err := message.Serialize(req, buf)
	if err != nil {
		e.txTable.Clear(h)
		return 0, err
	}

	token := append([]byte(nil), req.Token...)
	wrapped := func(r *message.Message) {
		if r != nil && r.Type == coap.TypeAcknowledgement && r.Code.IsEmpty() && len(token) > 0 {
			e.pendingSeparate[string(token)] = cb
			return
		}
		cb(r)
	}

	if err := e.txTable.Send(h, req.Type == coap.TypeConfirmable, token, buf[:n], wrapped); err != nil {
		return 0, err
	}
	return h, nil
}

// RegisterObservation sends a CON GET with Observe=0 for uriPath and
// keeps delivering subsequent notifications to cb until RemoveObservation
// is called (spec.md section 6: "register_observation(endpoint, uri,
// callback) -> token").
func (e *Engine) RegisterObservation(ep endpoint.Endpoint, uriPath string, cb func(resp *message.Message)) ([]byte, error) {
	token := e.randomToken()
	mid := e.nextMID()

	req := message.New(coap.TypeConfirmable, coap.CodeGET, mid)
	if err := req.SetToken(token); err != nil {
		return nil, err
	}
	req.SetUriPath(uriPath)
	req.SetObserve(0)

	h, err := e.txTable.NewTransaction(ep, mid)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	n, err := message.Serialize(req, buf)
	if err != nil {
		e.txTable.Clear(h)
		return nil, err
	}

	obs := &clientObservation{token: token, endpoint: ep, callback: cb}
	e.clientObs[string(token)] = obs

	err = e.txTable.Send(h, true, token, buf[:n], func(resp *message.Message) {
		if resp == nil {
			delete(e.clientObs, string(token))
			cb(nil)
			return
		}
		e.deliverObservation(obs, resp)
	})
	if err != nil {
		delete(e.clientObs, string(token))
		return nil, err
	}
	return token, nil
}

// RemoveObservation drops local bookkeeping for token (spec.md section
// 6: "remove_observation(token)"). It does not notify the remote
// server; a caller that wants to deregister server-side should send an
// explicit GET with Observe=1 via SendRequest.
func (e *Engine) RemoveObservation(token []byte) error {
	key := string(token)
	if _, ok := e.clientObs[key]; !ok {
		return ErrObservationNotFound
	}
	delete(e.clientObs, key)
	return nil
}

// deliverObservation enforces spec.md section 8 property 2: notifications
// are delivered in strictly increasing 24-bit modular sequence order,
// with reordered duplicates discarded.
func (e *Engine) deliverObservation(obs *clientObservation, resp *message.Message) {
	if seq, has := resp.Observe(); has {
		if obs.haveSeq && !seq24NewerThan(seq, obs.lastSeq) {
			e.logger.Debug("discarding reordered notification", "endpoint", obs.endpoint.String())
			return
		}
		obs.lastSeq = seq
		obs.haveSeq = true
	}
	obs.callback(resp)
}

// seq24NewerThan compares two 24-bit Observe sequence numbers using the
// half-window rule RFC 7641 section 3.4 specifies: a is newer than b iff
// (a - b) mod 2^24 is in (0, 2^23).
func seq24NewerThan(a, b uint32) bool {
	diff := (a - b) & 0xFFFFFF
	return diff != 0 && diff < 1<<23
}

func (e *Engine) randomToken() []byte {
	n := 1 + e.rng.Intn(coap.MaxTokenLength)
	token := make([]byte, n)
	e.rng.Read(token)
	return token
}
