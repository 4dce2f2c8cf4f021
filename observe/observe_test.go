package observe_test

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/contiki-ng/gocoap/endpoint"
	"github.com/contiki-ng/gocoap/internal/config"
	"github.com/contiki-ng/gocoap/observe"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEndpoint() endpoint.Endpoint {
	return endpoint.New(net.ParseIP("127.0.0.1"), 5683, false)
}

func TestRegisterAndNotifyDrainsOneAtATime(t *testing.T) {
	cfg := config.Default()
	cfg.NotifyDrainInterval = 10 * time.Millisecond
	tbl := observe.New(newLogger(), cfg)

	ep1 := testEndpoint()
	ep2 := endpoint.New(net.ParseIP("127.0.0.2"), 5683, false)
	tbl.Register(ep1, []byte{1}, "/sensors/temp")
	tbl.Register(ep2, []byte{2}, "/sensors/temp")

	tbl.NextSequence()
	tbl.NotifyAll("/sensors/temp")

	var notified []string
	notify := func(ep endpoint.Endpoint, token []byte, path string, seq uint32, confirmable bool) error {
		notified = append(notified, ep.String())
		return nil
	}

	now := time.Now()
	tbl.Tick(now, notify)
	require.Len(t, notified, 1)

	// Second observer not due yet: drain interval hasn't elapsed.
	tbl.Tick(now, notify)
	require.Len(t, notified, 1)

	tbl.Tick(now.Add(11*time.Millisecond), notify)
	require.Len(t, notified, 2)
}

func TestRefreshIntervalForcesConfirmable(t *testing.T) {
	cfg := config.Default()
	cfg.ObserveRefreshInterval = 2
	cfg.NotifyDrainInterval = 0
	tbl := observe.New(newLogger(), cfg)

	ep := testEndpoint()
	tbl.Register(ep, []byte{1}, "/a")

	var confirmables []bool
	notify := func(ep endpoint.Endpoint, token []byte, path string, seq uint32, confirmable bool) error {
		confirmables = append(confirmables, confirmable)
		return nil
	}

	now := time.Now()
	for i := 0; i < 2; i++ {
		tbl.NotifyAll("/a")
		tbl.Tick(now, notify)
		now = now.Add(time.Millisecond)
	}

	require.Equal(t, []bool{false, true}, confirmables)
}

func TestRemoveByTokenDeregisters(t *testing.T) {
	cfg := config.Default()
	tbl := observe.New(newLogger(), cfg)
	ep := testEndpoint()
	tbl.Register(ep, []byte{9}, "/a")
	require.True(t, tbl.HasObserver(ep, []byte{9}, "/a"))

	tbl.RemoveByToken(ep, []byte{9})
	require.False(t, tbl.HasObserver(ep, []byte{9}, "/a"))
}

func TestRemoveByURIClearsAllObserversOfResource(t *testing.T) {
	cfg := config.Default()
	tbl := observe.New(newLogger(), cfg)
	ep := testEndpoint()
	tbl.Register(ep, []byte{1}, "/a")
	tbl.Register(ep, []byte{2}, "/b")

	tbl.RemoveByURI("/a")
	require.False(t, tbl.HasObserver(ep, []byte{1}, "/a"))
	require.True(t, tbl.HasObserver(ep, []byte{2}, "/b"))
}

func TestRegisterReplacesExistingRegistration(t *testing.T) {
	cfg := config.Default()
	tbl := observe.New(newLogger(), cfg)
	ep := testEndpoint()
	tbl.Register(ep, []byte{1}, "/a")
	tbl.Register(ep, []byte{1}, "/a")
	require.Equal(t, 1, tbl.Count())
}

func TestDoubleNotifyQueuesTwoEntriesServicedInOrder(t *testing.T) {
	cfg := config.Default()
	cfg.NotifyDrainInterval = 0
	tbl := observe.New(newLogger(), cfg)
	ep := testEndpoint()
	tbl.Register(ep, []byte{1}, "/a")

	tbl.NextSequence()
	tbl.NotifyAll("/a")
	tbl.NextSequence()
	tbl.NotifyAll("/a")

	count := 0
	var seqs []uint32
	notify := func(ep endpoint.Endpoint, token []byte, path string, seq uint32, confirmable bool) error {
		count++
		seqs = append(seqs, seq)
		return nil
	}

	now := time.Now()
	tbl.Tick(now, notify)
	require.Equal(t, 1, count)
	tbl.Tick(now, notify)
	require.Equal(t, 2, count)
	// Both queued notifications drained; a third Tick is a no-op.
	tbl.Tick(now, notify)
	require.Equal(t, 2, count)
	// Serviced in the order queued: the first notify's sequence first.
	require.Equal(t, []uint32{1, 2}, seqs)
}

func TestSequenceWrapsAt24Bits(t *testing.T) {
	cfg := config.Default()
	tbl := observe.New(newLogger(), cfg)
	var last uint32
	for i := 0; i < 3; i++ {
		last = tbl.NextSequence()
	}
	require.Equal(t, uint32(3), last)

	// 2^24 increments in total bring the counter back to 0.
	for i := 3; i < 1<<24; i++ {
		last = tbl.NextSequence()
	}
	require.Equal(t, uint32(0), last)
}
