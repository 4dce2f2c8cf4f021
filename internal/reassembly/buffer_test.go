package reassembly_test

import (
	"testing"

	"github.com/contiki-ng/gocoap/internal/reassembly"
	"github.com/stretchr/testify/require"
)

func TestWriteInOrder(t *testing.T) {
	b := reassembly.New(16)
	require.NoError(t, b.Write(0, []byte("abcd")))
	require.NoError(t, b.Write(4, []byte("efgh")))
	require.Equal(t, "abcdefgh", string(b.Bytes()))
	require.Equal(t, 8, b.Occupied())
}

func TestWriteOutOfOrderResets(t *testing.T) {
	b := reassembly.New(16)
	require.NoError(t, b.Write(0, []byte("abcd")))
	err := b.Write(8, []byte("zzzz"))
	require.ErrorIs(t, err, reassembly.ErrOutOfOrder)
	require.Equal(t, 0, b.Occupied())
}

func TestWriteTooLarge(t *testing.T) {
	b := reassembly.New(4)
	err := b.Write(0, []byte("abcde"))
	require.ErrorIs(t, err, reassembly.ErrTooLarge)
}

func TestReset(t *testing.T) {
	b := reassembly.New(16)
	require.NoError(t, b.Write(0, []byte("abcd")))
	b.Reset()
	require.Equal(t, 0, b.Occupied())
	require.NoError(t, b.Write(0, []byte("xy")))
}
