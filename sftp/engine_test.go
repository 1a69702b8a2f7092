package sftp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/stretchr/testify/require"
)

func drive(t *testing.T, eng *Engine) xfer.Kind {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if k := eng.Done(); k != xfer.InProgress {
			return k
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("operation never completed")
	return xfer.Fatal
}

// serveLoop answers every request on conn with respond's reply until the
// pipe is closed, for tests whose Engine call issues more than one
// request/reply round trip in its background goroutine.
func serveLoop(conn net.Conn, respond func(typ byte, payload []byte) (byte, []byte)) {
	for {
		typ, id, payload, err := readPacket(conn)
		if err != nil {
			return
		}
		rt, rp := respond(typ, payload)
		if writePacket(conn, rt, id, true, rp) != nil {
			return
		}
	}
}

func TestEngineChangeDirResolvesAndVerifiesType(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	cl := &Client{w: clientSide, r: clientSide, version: 3, maxInFlight: 4, cwd: "/home/bob", home: "/home/bob"}
	eng := NewEngine(cl, xfer.Identity{Proto: "sftp", Host: "h"})

	go serveLoop(serverSide, func(typ byte, payload []byte) (byte, []byte) {
		switch typ {
		case packetRealpath:
			w := &wireWriter{}
			w.PutUint32(1)
			w.PutString("/tmp")
			w.PutString("")
			return packetName, w.Bytes()
		case packetStat:
			a := &attrs{fileType: fileTypeDirectory, havePerms: true, perms: 040755}
			w := &wireWriter{}
			a.pack(w, 3)
			return packetAttrs, w.Bytes()
		default:
			return packetStatus, statusReply(statusFailure, "unexpected")
		}
	})

	require.NoError(t, eng.Open("/tmp", xfer.ChangeDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
	require.Equal(t, "/tmp", eng.Cwd())
	serverSide.Close()
}

func TestEngineMakeDirRemoveDir(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	cl := &Client{w: clientSide, r: clientSide, version: 3, maxInFlight: 4}
	eng := NewEngine(cl, xfer.Identity{Proto: "sftp", Host: "h"})

	go serveLoop(serverSide, func(typ byte, payload []byte) (byte, []byte) {
		return packetStatus, statusReply(statusOK, "")
	})

	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))

	require.NoError(t, eng.Open("/d", xfer.RemoveDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
	serverSide.Close()
}

func TestEngineOpenRejectsConcurrentUse(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	cl := &Client{w: clientSide, r: clientSide, version: 3, maxInFlight: 4}
	eng := NewEngine(cl, xfer.Identity{Proto: "sftp", Host: "h"})

	go serveLoop(serverSide, func(typ byte, payload []byte) (byte, []byte) {
		return packetStatus, statusReply(statusOK, "")
	})

	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	err := eng.Open("/d2", xfer.MakeDir, 0)
	require.Error(t, err)
	drive(t, eng)
	serverSide.Close()
}

func TestEngineCanSeekAndNeedsSizeDateBeforehand(t *testing.T) {
	cl := &Client{version: 3}
	eng := NewEngine(cl, xfer.Identity{Proto: "sftp", Host: "h"})
	require.True(t, eng.CanSeek(100))
	require.False(t, eng.NeedsSizeDateBeforehand())
}

func TestEngineWriteOutsideStoreFails(t *testing.T) {
	cl := &Client{version: 3}
	eng := NewEngine(cl, xfer.Identity{Proto: "sftp", Host: "h"})
	_, err := eng.Write([]byte("x"))
	require.Error(t, err)
}

var _ io.Reader = (*retrieveStream)(nil)
