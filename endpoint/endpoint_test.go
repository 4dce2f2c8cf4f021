package endpoint_test

import (
	"net"
	"testing"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	b := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	c := endpoint.New(net.ParseIP("127.0.0.1"), 5684, false)
	d := endpoint.New(net.ParseIP("127.0.0.1"), 5683, true)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(d))
}

func TestParseRoundTrip(t *testing.T) {
	e := endpoint.New(net.ParseIP("192.0.2.1"), 5683, false)
	parsed, err := endpoint.Parse(e.String())
	require.NoError(t, err)
	require.True(t, e.Equal(parsed))

	secure := endpoint.New(net.ParseIP("192.0.2.1"), 5684, true)
	parsedSecure, err := endpoint.Parse(secure.String())
	require.NoError(t, err)
	require.True(t, secure.Equal(parsedSecure))
}

func TestParseInvalid(t *testing.T) {
	_, err := endpoint.Parse("http://10.0.0.1:5683")
	require.Error(t, err)
}
