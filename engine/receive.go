package engine

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/blockwise"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/registry"
)

// OnDatagram is the engine's first entry point (spec.md section 5,
// section 6: "on_datagram(endpoint, bytes)"). It runs the full receive
// flow from spec.md section 4.3 to completion before returning; there is
// no suspension inside it.
func (e *Engine) OnDatagram(ep endpoint.Endpoint, data []byte) {
	msg, err := message.Parse(data, ep)
	if err != nil {
		typ, mid, ok := peekHeader(data)
		if ok && errors.Is(err, coap.ErrBadOption) && coap.Code(data[1]).IsRequest() {
			// Header and token parsed cleanly; only an unrecognized
			// critical option failed, so the request is answered 4.02.
			req := message.New(typ, coap.Code(data[1]), mid)
			req.Token = append([]byte(nil), data[4:4+int(data[0]&0xF)]...)
			e.respondError(ep, req, coap.BadOption, dedupKey{endpoint: ep.String(), mid: mid})
			return
		}
		if ok && typ == coap.TypeConfirmable {
			e.sendEmpty(ep, coap.TypeReset, mid, nil)
		}
		e.logger.Debug("dropping malformed datagram", "endpoint", ep.String(), "err", err)
		return
	}

	switch {
	case msg.Code.IsEmpty():
		e.handleEmpty(ep, msg)
	case msg.Code.IsRequest():
		e.handleRequest(ep, msg)
	case msg.Code.IsResponse():
		e.handleResponse(ep, msg)
	default:
		e.logger.Debug("ignoring reserved code class", "code", msg.Code.String())
	}
}

// peekHeader extracts just the type and mid from a datagram too
// malformed for message.Parse to accept, so the engine can still honor
// spec.md section 4.3's "offending CON message gets a RST with the same
// mid" rule. Returns ok=false if the datagram is too short even for
// that.
func peekHeader(data []byte) (coap.Type, uint16, bool) {
	if len(data) < 4 {
		return 0, 0, false
	}
	return coap.Type((data[0] >> 4) & 0x3), binary.BigEndian.Uint16(data[2:4]), true
}

func (e *Engine) handleEmpty(ep endpoint.Endpoint, msg *message.Message) {
	switch msg.Type {
	case coap.TypeConfirmable:
		e.sendEmpty(ep, coap.TypeReset, msg.MID, nil)
	case coap.TypeAcknowledgement, coap.TypeReset:
		if h, ok := e.txTable.FindByMID(ep, msg.MID); ok {
			e.txTable.Deliver(h, msg)
		}
	}
}

func (e *Engine) handleResponse(ep endpoint.Endpoint, msg *message.Message) {
	if h, ok := e.txTable.FindByMID(ep, msg.MID); ok {
		e.txTable.Deliver(h, msg)
		if msg.Type == coap.TypeConfirmable {
			e.sendEmpty(ep, coap.TypeAcknowledgement, msg.MID, nil)
		}
		return
	}

	key := string(msg.Token)
	if cb, ok := e.pendingSeparate[key]; ok {
		delete(e.pendingSeparate, key)
		if msg.Type == coap.TypeConfirmable {
			e.sendEmpty(ep, coap.TypeAcknowledgement, msg.MID, nil)
		}
		cb(msg)
		return
	}

	if obs, ok := e.clientObs[key]; ok {
		if msg.Type == coap.TypeConfirmable {
			e.sendEmpty(ep, coap.TypeAcknowledgement, msg.MID, nil)
		}
		e.deliverObservation(obs, msg)
		return
	}

	e.logger.Debug("unmatched response, dropping", "endpoint", ep.String(), "mid", msg.MID)
}

func (e *Engine) handleRequest(ep endpoint.Endpoint, req *message.Message) {
	dk := dedupKey{endpoint: ep.String(), mid: req.MID}
	if req.Type == coap.TypeConfirmable {
		if cached, ok := e.dedup[dk]; ok {
			if err := e.transport.Send(ep, cached.response); err != nil {
				e.logger.Warn("dedup resend failed", "err", err)
			}
			return
		}
	}

	resp := message.New(coap.TypeConfirmable, coap.CodeEmpty, 0)
	sep := registry.NewSeparateResponse(ep, req.Token, e.blocks.PreferredBlockSize(), func(code coap.Code, payload []byte) error {
		return e.resumeSeparate(ep, req.Token, code, payload)
	})

	// Handler chain runs before resource lookup, in insertion order; the
	// first one to return Processed stops dispatch entirely (spec.md
	// section 4.3, "Handler chain").
	chainCtx := registry.NewContext(req, resp, sep)
	if e.registry.RunChain(chainCtx) {
		if resp.Code == coap.CodeEmpty {
			if req.Type == coap.TypeConfirmable {
				e.sendEmptyCached(ep, req.MID, dk)
			}
			return
		}
		e.finishRequest(ep, req, resp, dk)
		return
	}

	path, _ := req.UriPath()
	resource, found := e.registry.Resolve(path)
	if !found {
		e.respondError(ep, req, coap.NotFound, dk)
		return
	}

	handler, ok := resource.Method(req.Code)
	if !ok {
		e.respondError(ep, req, coap.MethodNotAllowed, dk)
		return
	}

	observeSeq, attachObserve, err := e.handleObserveOption(ep, req, resource, path)
	if err != nil {
		e.respondError(ep, req, coap.BadRequest, dk)
		return
	}

	body := req.Payload
	if b1, has := req.Block1(); has {
		outcome, reassembled := e.blocks.Feed(ep, req.Token, b1, req.Payload)
		switch outcome {
		case blockwise.Incomplete:
			resp := e.newResponse(req, coap.Continue)
			resp.SetBlock1(b1)
			e.finishRequest(ep, req, resp, dk)
			return
		case blockwise.OutOfOrder, blockwise.TooLarge:
			resp := e.newResponse(req, blockwise.ErrorCode(outcome))
			e.finishRequest(ep, req, resp, dk)
			return
		case blockwise.Complete:
			body = reassembled
		}
	}

	reqForHandler := *req
	reqForHandler.Payload = body

	ctx := registry.NewContext(&reqForHandler, resp, sep)

	handler(ctx)

	if resp.Code == coap.CodeEmpty {
		if req.Type == coap.TypeConfirmable {
			e.sendEmptyCached(ep, req.MID, dk)
		}
		return
	}

	if attachObserve {
		resp.SetObserve(observeSeq)
	}

	if b1, has := req.Block1(); has {
		resp.SetBlock1(b1)
	}
	e.applyBlock2(req, resp)

	e.finishRequest(ep, req, resp, dk)
}

// handleObserveOption implements spec.md section 4.4's registration
// half and the open question resolved in DESIGN.md: a non-GET
// request carrying Observe is rejected outright rather than silently
// ignored.
func (e *Engine) handleObserveOption(ep endpoint.Endpoint, req *message.Message, resource *registry.Resource, path string) (seq uint32, attach bool, err error) {
	seqOpt, has := req.Observe()
	if !has {
		return 0, false, nil
	}
	if req.Code != coap.CodeGET {
		return 0, false, coap.ErrIllegalArgument
	}
	switch seqOpt {
	case 0:
		if resource.Flags&registry.IsObservable == 0 {
			return 0, false, nil
		}
		e.observers.Register(ep, req.Token, path)
		return e.observers.CurrentSequence(), true, nil
	case 1:
		e.observers.RemoveByToken(ep, req.Token)
		return 0, false, nil
	default:
		return 0, false, nil
	}
}

// applyBlock2 slices resp.Payload per spec.md section 4.5: honor the
// client's requested Block2 size when present, otherwise chunk
// unprompted once the body exceeds the configured preferred size.
func (e *Engine) applyBlock2(req, resp *message.Message) {
	size := e.blocks.PreferredBlockSize()
	num := 0
	if b2, has := req.Block2(); has {
		if b2.Size < size {
			size = b2.Size
		}
		num = b2.Num
	} else if len(resp.Payload) <= size {
		return
	}

	chunk, more := blockwise.SliceBlock2(resp.Payload, num, size)
	resp.Payload = chunk
	resp.SetBlock2(message.Block{Num: num, More: more, Size: size})
}

// newResponse builds a bare response sharing req's token, to be filled
// in and sent by finishRequest.
func (e *Engine) newResponse(req *message.Message, code coap.Code) *message.Message {
	resp := message.New(coap.TypeConfirmable, code, req.MID)
	resp.Token = append([]byte(nil), req.Token...)
	return resp
}

// finishRequest stamps resp's type/mid/token to match req, serializes
// and sends it, and — for a CON request — caches the bytes under its
// mid so a retransmitted duplicate is replayed rather than re-dispatched
// (spec.md section 5).
func (e *Engine) finishRequest(ep endpoint.Endpoint, req, resp *message.Message, dk dedupKey) {
	resp.MID = req.MID
	resp.Token = append([]byte(nil), req.Token...)
	if req.Type == coap.TypeConfirmable {
		resp.Type = coap.TypeAcknowledgement
	} else {
		resp.Type = coap.TypeNonConfirmable
	}

	data, err := e.send(ep, resp)
	if err != nil {
		e.logger.Warn("failed to send response", "err", err)
		return
	}
	if req.Type == coap.TypeConfirmable {
		e.dedup[dk] = dedupEntry{response: data, expires: time.Now().Add(e.cfg.DedupWindow)}
	}
}

func (e *Engine) respondError(ep endpoint.Endpoint, req *message.Message, code coap.Code, dk dedupKey) {
	resp := e.newResponse(req, code)
	e.finishRequest(ep, req, resp, dk)
}

// sendEmpty sends a bare 0.00 ACK or RST carrying no options; token is
// attached only when non-empty.
func (e *Engine) sendEmpty(ep endpoint.Endpoint, typ coap.Type, mid uint16, token []byte) {
	m := message.New(typ, coap.CodeEmpty, mid)
	if len(token) > 0 {
		_ = m.SetToken(token)
	}
	if _, err := e.send(ep, m); err != nil {
		e.logger.Warn("failed to send empty message", "type", typ.String(), "err", err)
	}
}

// sendEmptyCached sends the empty ACK that precedes a separate response
// and caches it under dk, so a retransmitted duplicate of the original
// CON request is answered from cache instead of re-entering the
// handler and minting a second SeparateResponse continuation (spec.md
// section 5: duplicate CON requests are never re-dispatched).
func (e *Engine) sendEmptyCached(ep endpoint.Endpoint, mid uint16, dk dedupKey) {
	m := message.New(coap.TypeAcknowledgement, coap.CodeEmpty, mid)
	data, err := e.send(ep, m)
	if err != nil {
		e.logger.Warn("failed to send empty ack", "err", err)
		return
	}
	e.dedup[dk] = dedupEntry{response: data, expires: time.Now().Add(e.cfg.DedupWindow)}
}

// resumeSeparate implements spec.md section 4.3's "resume(continuation,
// code)": allocate a fresh CON transaction replaying the original token
// with a new mid, and send it.
func (e *Engine) resumeSeparate(ep endpoint.Endpoint, token []byte, code coap.Code, payload []byte) error {
	mid := e.nextMID()
	resp := message.New(coap.TypeConfirmable, code, mid)
	if err := resp.SetToken(token); err != nil {
		return err
	}
	resp.Payload = payload

	buf := make([]byte, 2048)
	n, err := message.Serialize(resp, buf)
	if err != nil {
		return err
	}

	h, err := e.txTable.NewTransaction(ep, mid)
	if err != nil {
		return err
	}
	return e.txTable.Send(h, true, token, buf[:n], nil)
}

// sendNotification is the observe.NotifyFunc the engine hands to
// observe.Table.Tick: it reconstructs a fresh representation by
// re-invoking the resource's GET handler (spec.md section 4.4 step 2:
// "notifications are always freshly computed, never memoized") and
// sends it tagged with the observer's token and the given sequence
// number.
func (e *Engine) sendNotification(ep endpoint.Endpoint, token []byte, path string, seq uint32, confirmable bool) error {
	resource, found := e.registry.Resolve(path)
	if !found {
		e.observers.RemoveByURI(path)
		return nil
	}
	handler, ok := resource.Method(coap.CodeGET)
	if !ok {
		return nil
	}

	synthetic := message.New(coap.TypeConfirmable, coap.CodeGET, 0)
	synthetic.Token = append([]byte(nil), token...)
	resp := message.New(coap.TypeConfirmable, coap.CodeEmpty, 0)
	ctx := registry.NewContext(synthetic, resp, nil)
	handler(ctx)

	if resp.Code == coap.CodeEmpty {
		resp.Code = coap.Content
	}
	resp.SetObserve(seq)
	resp.Token = append([]byte(nil), token...)
	mid := e.nextMID()
	resp.MID = mid

	if confirmable {
		resp.Type = coap.TypeConfirmable
	} else {
		resp.Type = coap.TypeNonConfirmable
	}

	buf := make([]byte, 2048)
	n, err := message.Serialize(resp, buf)
	if err != nil {
		return err
	}

	if !confirmable {
		return e.transport.Send(ep, buf[:n])
	}

	h, err := e.txTable.NewTransaction(ep, mid)
	if err != nil {
		return err
	}
	return e.txTable.Send(h, true, token, buf[:n], func(ackResp *message.Message) {
		if ackResp == nil || ackResp.Type == coap.TypeReset {
			// Retransmission exhausted, or the client answered the
			// notification with RST: either way the observer is removed.
			e.observers.RemoveByToken(ep, token)
			return
		}
		e.observers.AcknowledgeRefresh(time.Now())
	})
}
