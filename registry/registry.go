// Package registry is the resource table from spec.md section 4.3/3: an
// ordered list of activated resources, resolved by URI path, plus the
// catch-all handler chain consulted ahead of it.
//
// Grounded on the teacher's pkg/od.ObjectDictionary/Entry: a
// logger-carrying container keyed by name (there, OD index; here, URI
// path), with the same "warn and overwrite" behavior on duplicate
// registration (od.go:addEntry).
package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/message"
)

// Flags mirror spec.md section 3's Resource flag set.
type Flags uint8

const (
	HasSubResources Flags = 1 << iota
	IsObservable
	IsSeparate
	IsPeriodic
)

// HandlerFunc serves one method on one resource. If it returns without
// setting ctx.Response.Code (leaving it at coap.CodeEmpty), the engine
// treats the exchange as a separate response: it sends an empty ACK now
// and the handler is expected to have captured ctx.Separate() to resume
// later (spec.md section 4.3, "Separate response").
type HandlerFunc func(ctx *Context)

// Context is the per-request scratch handed to a HandlerFunc and to
// chain handlers.
type Context struct {
	Request  *message.Message
	Response *message.Message

	separate *SeparateResponse
}

// NewContext constructs the per-request scratch handed to a resource's
// handler. sep may be nil when the engine has no means of answering the
// request separately (e.g. it is a synthetic request built to refresh
// an observe notification).
func NewContext(req, resp *message.Message, sep *SeparateResponse) *Context {
	return &Context{Request: req, Response: resp, separate: sep}
}

// Separate returns the continuation the engine prepared for this
// request, or nil if the request arrived in a way that cannot be
// answered separately (e.g. it is itself a notification replay). A
// handler that intends to answer later should hold onto the returned
// value and call its Resume method once the real answer is ready; it
// must leave ctx.Response.Code at coap.CodeEmpty so the engine knows to
// send the empty ACK instead of a piggy-backed response.
func (c *Context) Separate() *SeparateResponse {
	return c.separate
}

// Resource is one activated CoAP resource (spec.md section 3).
type Resource struct {
	Path       string
	Flags      Flags
	Attributes string // link-format attribute string for .well-known/core
	Handlers   map[coap.Code]HandlerFunc

	// PeriodicInterval and PeriodicHandler implement spec.md section
	// 4.3's periodic resources: the engine arms a timer at this
	// interval and calls PeriodicHandler(r) on expiry, then rearms.
	PeriodicInterval time.Duration
	PeriodicHandler  func(r *Resource)
}

func (r *Resource) Method(code coap.Code) (HandlerFunc, bool) {
	h, ok := r.Handlers[code]
	return h, ok
}

// Registry holds the activated resource list plus the custom handler
// chain, in registration order (spec.md section 3: "Ordered list of
// activated resources").
type Registry struct {
	logger    *slog.Logger
	resources []*Resource
	byPath    map[string]*Resource
	chain     []ChainFunc
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("component", "registry"),
		byPath: map[string]*Resource{},
	}
}

// Activate adds r to the registry. A resource re-activated at a path
// already in use replaces the previous one, with a warning logged —
// exactly od.go's addEntry behavior on duplicate index.
func (reg *Registry) Activate(r *Resource) {
	path := normalizePath(r.Path)
	r.Path = path
	if _, exists := reg.byPath[path]; exists {
		reg.logger.Warn("overwriting resource", "path", path)
		for i, existing := range reg.resources {
			if existing.Path == path {
				reg.resources = append(reg.resources[:i], reg.resources[i+1:]...)
				break
			}
		}
	}
	reg.byPath[path] = r
	reg.resources = append(reg.resources, r)
	reg.logger.Debug("activated resource", "path", path, "flags", r.Flags)
}

// Resolve finds a resource by exact URI-Path match (spec.md section 4.3:
// "resolve resource by URI-Path"). No sub-resource matching is done,
// here or in the Observe fan-out: observe.Table.NotifyAll also matches
// the exact path only, and the HasSubResources flag is not consulted
// anywhere.
func (reg *Registry) Resolve(path string) (*Resource, bool) {
	r, ok := reg.byPath[normalizePath(path)]
	return r, ok
}

// All returns every activated resource in registration order.
func (reg *Registry) All() []*Resource {
	return reg.resources
}

// LinkFormat renders the `.well-known/core` payload: one
// "</path>;attrs" entry per activated resource, comma-separated. Query
// filtering is out of scope (spec.md section 1 non-goals).
func (reg *Registry) LinkFormat() string {
	entries := make([]string, 0, len(reg.resources))
	for _, r := range reg.resources {
		entry := fmt.Sprintf("</%s>", r.Path)
		if r.Attributes != "" {
			entry += ";" + r.Attributes
		}
		entries = append(entries, entry)
	}
	return strings.Join(entries, ",")
}

func normalizePath(p string) string {
	return strings.Trim(p, "/")
}
