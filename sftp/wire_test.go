package sftp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	w := &wireWriter{}
	w.PutString("/home/bob")
	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, packetStat, 42, true, w.Bytes()))

	typ, id, payload, err := readPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, packetStat, typ)
	require.Equal(t, uint32(42), id)

	r := newWireReader(payload)
	require.Equal(t, "/home/bob", r.String())
	require.NoError(t, r.Err())
}

func TestWritePacketOmitsIDForInitAndVersion(t *testing.T) {
	var buf bytes.Buffer
	w := &wireWriter{}
	w.PutUint32(maxVersion)
	require.NoError(t, writePacket(&buf, packetInit, 0, false, w.Bytes()))

	typ, id, payload, err := readPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, packetInit, typ)
	require.Equal(t, uint32(0), id)
	require.Equal(t, uint32(maxVersion), newWireReader(payload).Uint32())
}

func TestPacketHasID(t *testing.T) {
	require.False(t, packetHasID(packetInit))
	require.False(t, packetHasID(packetVersion))
	require.True(t, packetHasID(packetOpen))
	require.True(t, packetHasID(packetStatus))
}

func TestReadPacketRejectsImplausibleLength(t *testing.T) {
	var buf bytes.Buffer
	w := &wireWriter{}
	w.PutUint32(1 << 27)
	buf.Write(w.Bytes())
	_, _, _, err := readPacket(&buf)
	require.Error(t, err)
}
