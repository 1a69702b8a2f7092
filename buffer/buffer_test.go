package buffer_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/gonzalop/xfer/buffer"
	"github.com/stretchr/testify/require"
)

func TestBufferPutGetSkip(t *testing.T) {
	b := buffer.New(buffer.Get)
	b.Put([]byte("hello world"))
	require.Equal(t, 11, b.Size())

	out := make([]byte, 5)
	n := b.Get(out)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
	require.Equal(t, 6, b.Size())

	b.Skip(1)
	require.Equal(t, 5, b.Size())

	rest := make([]byte, 16)
	n = b.Get(rest)
	require.Equal(t, "world", string(rest[:n]))
}

func TestBufferEOF(t *testing.T) {
	b := buffer.New(buffer.Put)
	require.False(t, b.EOF())
	b.Put([]byte("x"))
	b.PutEOF()
	require.False(t, b.EOF()) // still has unread bytes
	b.Skip(1)
	require.True(t, b.EOF())
}

func TestTelnetRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("plain ascii, no escapes"),
		{0xFF},
		{0xFF, 0xFF},
		[]byte("a\xffb\xffc"),
		{},
	}
	for _, in := range cases {
		enc := buffer.TelnetEncode(in)
		var dec buffer.TelnetDecoder
		got := dec.Decode(enc)
		require.Equal(t, in, got)
	}
}

func TestTelnetRoundTripRandomChunked(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		n := r.Intn(200)
		in := make([]byte, n)
		for i := range in {
			if r.Intn(5) == 0 {
				in[i] = 0xFF
			} else {
				in[i] = byte(r.Intn(256))
			}
		}
		enc := buffer.TelnetEncode(in)

		// Feed the encoded bytes through the decoder in random-sized
		// chunks to exercise the partial-sequence state machine.
		var dec buffer.TelnetDecoder
		var got []byte
		for len(enc) > 0 {
			chunk := 1 + r.Intn(3)
			if chunk > len(enc) {
				chunk = len(enc)
			}
			got = append(got, dec.Decode(enc[:chunk])...)
			enc = enc[chunk:]
		}
		require.True(t, bytes.Equal(in, got), "trial %d: in=%x got=%x", trial, in, got)
	}
}

func TestTelnetDropsWillWontDoDont(t *testing.T) {
	var dec buffer.TelnetDecoder
	// IAC WILL <opt>
	in := []byte{'a', 0xFF, 0xFB, 0x01, 'b'}
	got := dec.Decode(in)
	require.Equal(t, []byte("ab"), got)
}
