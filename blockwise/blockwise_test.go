package blockwise_test

import (
	"net"
	"testing"

	"github.com/contiki-ng/gocoap/blockwise"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/message"
	"github.com/stretchr/testify/require"
)

func testEndpoint() endpoint.Endpoint {
	return endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
}

func TestFeedReassemblesInOrderBlocks(t *testing.T) {
	cfg := config.Default()
	cfg.MaxReassemblySize = 64
	mgr := blockwise.New(cfg)
	ep := testEndpoint()
	token := []byte{1, 2}

	outcome, body := mgr.Feed(ep, token, message.Block{Num: 0, More: true, Size: 16}, make([]byte, 16))
	require.Equal(t, blockwise.Incomplete, outcome)
	require.Nil(t, body)

	outcome, body = mgr.Feed(ep, token, message.Block{Num: 1, More: false, Size: 16}, make([]byte, 8))
	require.Equal(t, blockwise.Complete, outcome)
	require.Len(t, body, 24)
}

func TestFeedDetectsOutOfOrder(t *testing.T) {
	cfg := config.Default()
	mgr := blockwise.New(cfg)
	ep := testEndpoint()
	token := []byte{1}

	outcome, _ := mgr.Feed(ep, token, message.Block{Num: 1, More: true, Size: 16}, make([]byte, 16))
	require.Equal(t, blockwise.OutOfOrder, outcome)
}

func TestFeedDetectsTooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.MaxReassemblySize = 10
	mgr := blockwise.New(cfg)
	ep := testEndpoint()
	token := []byte{1}

	outcome, _ := mgr.Feed(ep, token, message.Block{Num: 0, More: true, Size: 16}, make([]byte, 16))
	require.Equal(t, blockwise.TooLarge, outcome)
}

func TestSliceBlock2(t *testing.T) {
	body := make([]byte, 40)
	for i := range body {
		body[i] = byte(i)
	}

	chunk, more := blockwise.SliceBlock2(body, 0, 16)
	require.Len(t, chunk, 16)
	require.True(t, more)

	chunk, more = blockwise.SliceBlock2(body, 1, 16)
	require.Len(t, chunk, 16)
	require.True(t, more)

	chunk, more = blockwise.SliceBlock2(body, 2, 16)
	require.Len(t, chunk, 8)
	require.False(t, more)

	chunk, more = blockwise.SliceBlock2(body, 3, 16)
	require.Nil(t, chunk)
	require.False(t, more)
}
