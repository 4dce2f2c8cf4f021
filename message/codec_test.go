package message_test

import (
	"net"
	"testing"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/message"
	"github.com/stretchr/testify/require"
)

var testSrc = endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)

func TestParseSerializeRoundTrip(t *testing.T) {
	m := message.New(coap.TypeConfirmable, coap.CodeGET, 0x1234)
	require.NoError(t, m.SetToken([]byte{0xAB, 0xCD}))
	m.SetUriPath("sensors/temp")
	m.SetContentFormat(0)
	m.SetObserve(7)
	m.SetPayload([]byte("hello"))

	buf := make([]byte, 256)
	n, err := message.Serialize(m, buf)
	require.NoError(t, err)

	parsed, err := message.Parse(buf[:n], testSrc)
	require.NoError(t, err)

	require.Equal(t, m.Type, parsed.Type)
	require.Equal(t, m.Code, parsed.Code)
	require.Equal(t, m.MID, parsed.MID)
	require.Equal(t, m.Token, parsed.Token)
	require.Equal(t, m.Payload, parsed.Payload)

	path, ok := parsed.UriPath()
	require.True(t, ok)
	require.Equal(t, "sensors/temp", path)

	cf, ok := parsed.ContentFormat()
	require.True(t, ok)
	require.EqualValues(t, 0, cf)

	obs, ok := parsed.Observe()
	require.True(t, ok)
	require.EqualValues(t, 7, obs)
}

func TestTokenBoundary(t *testing.T) {
	for _, n := range []int{0, 8} {
		m := message.New(coap.TypeConfirmable, coap.CodeGET, 1)
		require.NoError(t, m.SetToken(make([]byte, n)))
		buf := make([]byte, 64)
		written, err := message.Serialize(m, buf)
		require.NoError(t, err)
		parsed, err := message.Parse(buf[:written], testSrc)
		require.NoError(t, err)
		require.Len(t, parsed.Token, n)
	}

	m := message.New(coap.TypeConfirmable, coap.CodeGET, 1)
	require.Error(t, m.SetToken(make([]byte, 9)))
}

func TestPayloadMarkerWithNoPayloadIsFormatError(t *testing.T) {
	// 4-byte header, TKL=0, then a bare 0xFF with nothing after it.
	data := []byte{0x40, 0x01, 0x00, 0x01, 0xFF}
	_, err := message.Parse(data, testSrc)
	require.ErrorIs(t, err, coap.ErrFormatError)
}

func TestUnknownCriticalOptionIsBadOption(t *testing.T) {
	// Option number 9 (odd => critical), delta=9, length=0, no payload.
	data := []byte{0x40, 0x01, 0x00, 0x01, 0x90}
	_, err := message.Parse(data, testSrc)
	require.ErrorIs(t, err, coap.ErrBadOption)
}

func TestUnknownElectiveOptionIsSkipped(t *testing.T) {
	// Option number 2 (even => elective), delta=2, length=1, value 0x7.
	data := []byte{0x40, 0x01, 0x00, 0x01, 0x21, 0x07}
	m, err := message.Parse(data, testSrc)
	require.NoError(t, err)
	require.False(t, m.HasOption(2))
}

func TestReservedNibbleIsFormatError(t *testing.T) {
	data := []byte{0x40, 0x01, 0x00, 0x01, 0xF0}
	_, err := message.Parse(data, testSrc)
	require.ErrorIs(t, err, coap.ErrFormatError)
}

func TestExtendedOptionNumberRoundTrip(t *testing.T) {
	// Uri-Query (15, three segments) followed by Size1 (60): both
	// deltas are past 12, so each needs an extension byte.
	m := message.New(coap.TypeNonConfirmable, coap.CodePOST, 42)
	m.SetUriQuery("a=1&b=2&c=3")
	m.SetSize1(300) // option 60: delta from 15 is 45, still single ext byte
	buf := make([]byte, 128)
	n, err := message.Serialize(m, buf)
	require.NoError(t, err)
	parsed, err := message.Parse(buf[:n], testSrc)
	require.NoError(t, err)
	size1, ok := parsed.Size1()
	require.True(t, ok)
	require.EqualValues(t, 300, size1)
}

func TestIfMatchRepeatable(t *testing.T) {
	m := message.New(coap.TypeConfirmable, coap.CodePUT, 1)
	m.AddIfMatch([]byte{0x01})
	m.AddIfMatch([]byte{0x02, 0x03})
	buf := make([]byte, 64)
	n, err := message.Serialize(m, buf)
	require.NoError(t, err)
	parsed, err := message.Parse(buf[:n], testSrc)
	require.NoError(t, err)
	tags := parsed.IfMatch()
	require.Len(t, tags, 2)
	require.Equal(t, []byte{0x01}, tags[0])
	require.Equal(t, []byte{0x02, 0x03}, tags[1])
}
