package registry

// ChainResult is returned by a ChainFunc to tell the engine whether to
// keep walking the handler chain or stop (spec.md section 4.3:
// "Handler chain").
type ChainResult int

const (
	Continue ChainResult = iota
	Processed
)

// ChainFunc is a catch-all handler consulted before resource lookup, in
// registration order (spec.md section 4.3). Application overlays such
// as cmd/coap-server's .well-known/core handler hook the pipeline this
// way; Observe registration and Block1 reassembly are not chain
// handlers, the engine runs them directly after resource lookup.
type ChainFunc func(ctx *Context) ChainResult

// AddHandler appends h to the end of the chain.
func (reg *Registry) AddHandler(h ChainFunc) {
	reg.chain = append(reg.chain, h)
}

// RunChain walks the chain head-to-tail, stopping at the first handler
// that returns Processed. Reports whether any handler processed the
// request.
func (reg *Registry) RunChain(ctx *Context) bool {
	for _, h := range reg.chain {
		if h(ctx) == Processed {
			return true
		}
	}
	return false
}
