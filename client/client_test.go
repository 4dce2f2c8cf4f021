package client_test

import (
	"net"
	"testing"

	"github.com/contiki-ng/gocoap"
	"github.com/contiki-ng/gocoap/client"
	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/transaction"
	"github.com/stretchr/testify/require"
)

// fakeSender stands in for engine.Engine: it records every request sent
// and lets the test script the response delivered to the resulting
// callback.
type fakeSender struct {
	requests []*message.Message
	respond  func(req *message.Message, cb func(*message.Message))
}

func (f *fakeSender) SendRequest(ep endpoint.Endpoint, req *message.Message, cb func(resp *message.Message)) (transaction.Handle, error) {
	f.requests = append(f.requests, req)
	f.respond(req, cb)
	return transaction.Handle(len(f.requests)), nil
}

func testEndpoint() endpoint.Endpoint {
	return endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
}

func blockResponse(num int, more bool, payload string) *message.Message {
	resp := message.New(coap.TypeAcknowledgement, coap.Content, 0)
	_ = resp.SetBlock2(message.Block{Num: num, More: more, Size: 64})
	resp.Payload = []byte(payload)
	return resp
}

func TestGetWalksAllBlocksInOrder(t *testing.T) {
	pages := []string{"aaaa", "bbbb", "cccc"}
	sender := &fakeSender{}
	sender.respond = func(req *message.Message, cb func(*message.Message)) {
		b2, has := req.Block2()
		num := 0
		if has {
			num = b2.Num
		}
		more := num < len(pages)-1
		cb(blockResponse(num, more, pages[num]))
	}

	d := client.New(sender, config.Default())

	var statuses []client.Status
	var body []byte
	err := d.Get(testEndpoint(), "/big", func(resp *message.Message, status client.Status) {
		statuses = append(statuses, status)
		if resp != nil {
			body = append(body, resp.Payload...)
		}
	})
	require.NoError(t, err)

	require.Equal(t, []client.Status{
		client.StatusMore, client.StatusMore, client.StatusResponse, client.StatusFinished,
	}, statuses)
	require.Equal(t, "aaaabbbbcccc", string(body))
	require.Len(t, sender.requests, 3)
}

func TestGetSingleBlockResponseFinishesImmediately(t *testing.T) {
	sender := &fakeSender{
		respond: func(req *message.Message, cb func(*message.Message)) {
			resp := message.New(coap.TypeAcknowledgement, coap.Content, 0)
			resp.Payload = []byte("small")
			cb(resp)
		},
	}
	d := client.New(sender, config.Default())

	var statuses []client.Status
	err := d.Get(testEndpoint(), "/small", func(resp *message.Message, status client.Status) {
		statuses = append(statuses, status)
	})
	require.NoError(t, err)
	require.Equal(t, []client.Status{client.StatusFinished}, statuses)
	require.Len(t, sender.requests, 1)
}

func TestGetTimeoutDeliversNilResponse(t *testing.T) {
	sender := &fakeSender{
		respond: func(req *message.Message, cb func(*message.Message)) {
			cb(nil)
		},
	}
	d := client.New(sender, config.Default())

	var statuses []client.Status
	err := d.Get(testEndpoint(), "/dead", func(resp *message.Message, status client.Status) {
		statuses = append(statuses, status)
		require.Nil(t, resp)
	})
	require.NoError(t, err)
	require.Equal(t, []client.Status{client.StatusTimeout}, statuses)
}

func TestGetMisorderedBlockRetriesThenGivesUp(t *testing.T) {
	cfg := config.Default()
	cfg.MaxBlockAttempts = 2

	sender := &fakeSender{
		respond: func(req *message.Message, cb func(*message.Message)) {
			// Server always claims to be sending block 5, never the
			// block actually requested.
			cb(blockResponse(5, true, "wrong"))
		},
	}
	d := client.New(sender, cfg)

	var statuses []client.Status
	err := d.Get(testEndpoint(), "/flaky", func(resp *message.Message, status client.Status) {
		statuses = append(statuses, status)
	})
	require.NoError(t, err)
	require.Equal(t, []client.Status{client.StatusBlockError}, statuses)
	require.Len(t, sender.requests, cfg.MaxBlockAttempts)
}

func TestGetRetriesOnceThenRecoversOnCorrectBlock(t *testing.T) {
	attempt := 0
	sender := &fakeSender{}
	sender.respond = func(req *message.Message, cb func(*message.Message)) {
		attempt++
		if attempt == 1 {
			cb(blockResponse(9, true, "wrong"))
			return
		}
		cb(blockResponse(0, false, "right"))
	}
	d := client.New(sender, config.Default())

	var statuses []client.Status
	err := d.Get(testEndpoint(), "/recovers", func(resp *message.Message, status client.Status) {
		statuses = append(statuses, status)
	})
	require.NoError(t, err)
	require.Equal(t, []client.Status{client.StatusResponse, client.StatusFinished}, statuses)
	require.Equal(t, 2, attempt)
}
