package transaction_test

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/message"
	"github.com/contiki-ng/gocoap/transaction"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) Send(ep endpoint.Endpoint, data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNonConfirmableClearsSlotImmediately(t *testing.T) {
	ft := &fakeTransport{}
	cfg := config.Default()
	table := transaction.New(newLogger(), cfg, ft)

	ep := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	h, err := table.NewTransaction(ep, 1)
	require.NoError(t, err)

	called := false
	require.NoError(t, table.Send(h, false, nil, []byte("non"), func(resp *message.Message) {
		called = true
	}))

	require.Len(t, ft.sent, 1)
	require.False(t, called)

	// Table must accept a fresh allocation immediately: the slot was
	// released, not merely marked done.
	_, err = table.NewTransaction(ep, 2)
	require.NoError(t, err)
}

func TestConfirmableRetransmitsThenTimesOut(t *testing.T) {
	ft := &fakeTransport{}
	cfg := config.Default()
	cfg.MaxRetransmit = 2
	cfg.AckTimeout = 10 * time.Millisecond
	cfg.AckRandomFactor = 1.0 // no jitter, deterministic test
	table := transaction.New(newLogger(), cfg, ft)

	ep := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	h, err := table.NewTransaction(ep, 7)
	require.NoError(t, err)

	var result *message.Message
	done := false
	require.NoError(t, table.Send(h, true, []byte{0xAB}, []byte("con"), func(resp *message.Message) {
		done = true
		result = resp
	}))
	require.Len(t, ft.sent, 1)

	now := time.Now()
	// First retransmission.
	table.Tick(now.Add(15 * time.Millisecond))
	require.Len(t, ft.sent, 2)
	require.False(t, done)

	// Second retransmission (interval doubled).
	table.Tick(now.Add(15*time.Millisecond + 25*time.Millisecond))
	require.Len(t, ft.sent, 3)
	require.False(t, done)

	// Exhausted: callback fires with nil response.
	table.Tick(now.Add(15*time.Millisecond + 25*time.Millisecond + 45*time.Millisecond))
	require.True(t, done)
	require.Nil(t, result)
}

func TestFindByMIDMatchesEndpoint(t *testing.T) {
	ft := &fakeTransport{}
	table := transaction.New(newLogger(), config.Default(), ft)

	epA := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	epB := endpoint.New(net.ParseIP("127.0.0.2"), 5683, false)

	h, err := table.NewTransaction(epA, 99)
	require.NoError(t, err)
	require.NoError(t, table.Send(h, true, nil, []byte("x"), nil))

	_, ok := table.FindByMID(epB, 99)
	require.False(t, ok)

	found, ok := table.FindByMID(epA, 99)
	require.True(t, ok)
	require.Equal(t, h, found)
}

func TestTableFull(t *testing.T) {
	ft := &fakeTransport{}
	cfg := config.Default()
	cfg.MaxOpenTransactions = 1
	table := transaction.New(newLogger(), cfg, ft)

	ep := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
	_, err := table.NewTransaction(ep, 1)
	require.NoError(t, err)

	_, err = table.NewTransaction(ep, 2)
	require.ErrorIs(t, err, transaction.ErrTableFull)
}

func TestDeliverInvokesCallbackOnce(t *testing.T) {
	ft := &fakeTransport{}
	table := transaction.New(newLogger(), config.Default(), ft)
	ep := endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)

	h, err := table.NewTransaction(ep, 5)
	require.NoError(t, err)

	calls := 0
	require.NoError(t, table.Send(h, true, nil, []byte("x"), func(resp *message.Message) {
		calls++
	}))

	resp := message.New(0, 0, 5)
	table.Deliver(h, resp)
	require.Equal(t, 1, calls)

	// Slot is gone; delivering again on the stale handle is a no-op.
	table.Deliver(h, resp)
	require.Equal(t, 1, calls)
}
