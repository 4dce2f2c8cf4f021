package registry

import (
	"errors"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
)

// ErrNotArmed is returned by SeparateResponse.Resume if the engine never
// wired a resume function into it (e.g. it was constructed by a test
// directly instead of by the engine).
var ErrNotArmed = errors.New("registry: separate response not armed by engine")

// SeparateResponse is the explicit continuation value spec.md section 9
// calls for in place of the teacher's per-resource static struct: it
// captures everything the engine needs to send the real response later
// (spec.md section 4.3), and is handed to the resource by move — the
// resource holds onto it and calls Resume once its delayed work
// completes.
type SeparateResponse struct {
	Endpoint           endpoint.Endpoint
	Token              []byte
	PreferredBlockSize int

	resumeFunc func(code coap.Code, payload []byte) error
}

// NewSeparateResponse is used by the engine to construct an armed
// continuation; resume is the engine's closure that allocates a fresh
// CON transaction and sends it (spec.md section 4.3).
func NewSeparateResponse(ep endpoint.Endpoint, token []byte, preferredBlockSize int, resume func(code coap.Code, payload []byte) error) *SeparateResponse {
	return &SeparateResponse{
		Endpoint:           ep,
		Token:              append([]byte(nil), token...),
		PreferredBlockSize: preferredBlockSize,
		resumeFunc:         resume,
	}
}

// Resume sends the real response: a fresh CON transaction replaying the
// original token with a new message id (spec.md section 4.3).
func (s *SeparateResponse) Resume(code coap.Code, payload []byte) error {
	if s.resumeFunc == nil {
		return ErrNotArmed
	}
	return s.resumeFunc(code, payload)
}
