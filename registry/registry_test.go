package registry_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/registry"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestActivateAndResolve(t *testing.T) {
	reg := registry.New(newLogger())
	r := &registry.Resource{
		Path:       "/sensors/temp",
		Attributes: `rt="temperature"`,
		Handlers: map[coap.Code]registry.HandlerFunc{
			coap.CodeGET: func(ctx *registry.Context) {
				ctx.Response.Code = coap.Content
			},
		},
	}
	reg.Activate(r)

	found, ok := reg.Resolve("sensors/temp")
	require.True(t, ok)
	require.Same(t, r, found)

	_, ok = reg.Resolve("sensors/missing")
	require.False(t, ok)
}

func TestActivateOverwritesExisting(t *testing.T) {
	reg := registry.New(newLogger())
	first := &registry.Resource{Path: "/a"}
	second := &registry.Resource{Path: "/a", Attributes: "rt=\"v2\""}
	reg.Activate(first)
	reg.Activate(second)

	require.Len(t, reg.All(), 1)
	found, _ := reg.Resolve("/a")
	require.Same(t, second, found)
}

func TestLinkFormat(t *testing.T) {
	reg := registry.New(newLogger())
	reg.Activate(&registry.Resource{Path: "/a", Attributes: `rt="a"`})
	reg.Activate(&registry.Resource{Path: "/b"})

	require.Equal(t, `</a>;rt="a",</b>`, reg.LinkFormat())
}
