package sftp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestClientPipe wires a Client to one end of a net.Pipe and returns the
// other end for a test-authored fake server goroutine to drive.
func newTestClientPipe(version int) (*Client, net.Conn) {
	clientSide, serverSide := net.Pipe()
	c := &Client{w: clientSide, r: clientSide, version: version, maxInFlight: 4}
	return c, serverSide
}

func serveOnce(t *testing.T, conn net.Conn, handle func(typ byte, id uint32, payload []byte) (replyType byte, reply []byte)) {
	t.Helper()
	typ, id, payload, err := readPacket(conn)
	require.NoError(t, err)
	rt, rp := handle(typ, id, payload)
	require.NoError(t, writePacket(conn, rt, id, true, rp))
}

func statusReply(code uint32, msg string) []byte {
	w := &wireWriter{}
	w.PutUint32(code)
	w.PutString(msg)
	w.PutString("")
	return w.Bytes()
}

func TestClientStatParsesAttrs(t *testing.T) {
	c, srv := newTestClientPipe(3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			require.Equal(t, packetStat, typ)
			a := &attrs{haveSize: true, size: 42, havePerms: true, perms: 0100644}
			w := &wireWriter{}
			a.pack(w, 3)
			return packetAttrs, w.Bytes()
		})
	}()

	fi, err := c.Stat("/tmp/x")
	require.NoError(t, err)
	require.True(t, fi.HasSize())
	require.Equal(t, int64(42), fi.Size())
	<-done
}

func TestClientStatTranslatesNoSuchFile(t *testing.T) {
	c, srv := newTestClientPipe(3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			return packetStatus, statusReply(statusNoSuchFile, "no such file")
		})
	}()

	_, err := c.Stat("/nope")
	require.Error(t, err)
	<-done
}

func TestClientRemoveMkdirRmdirRename(t *testing.T) {
	cases := []struct {
		name string
		do   func(c *Client) error
		want byte
	}{
		{"remove", func(c *Client) error { return c.Remove("/f") }, packetRemove},
		{"mkdir", func(c *Client) error { return c.Mkdir("/d") }, packetMkdir},
		{"rmdir", func(c *Client) error { return c.Rmdir("/d") }, packetRmdir},
		{"rename", func(c *Client) error { return c.Rename("/a", "/b") }, packetRename},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, srv := newTestClientPipe(3)
			done := make(chan struct{})
			go func() {
				defer close(done)
				serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
					require.Equal(t, tc.want, typ)
					return packetStatus, statusReply(statusOK, "")
				})
			}()
			require.NoError(t, tc.do(c))
			<-done
		})
	}
}

func TestClientRealpathEmptyNameListIsError(t *testing.T) {
	c, srv := newTestClientPipe(3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			w := &wireWriter{}
			w.PutUint32(0)
			return packetName, w.Bytes()
		})
	}()
	_, err := c.Realpath(".")
	require.Error(t, err)
	<-done
}

func TestClientListCollectsEntriesAcrossReaddirCalls(t *testing.T) {
	c, srv := newTestClientPipe(3)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// OPENDIR
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			require.Equal(t, packetOpendir, typ)
			w := &wireWriter{}
			w.PutString("dirhandle")
			return packetHandle, w.Bytes()
		})
		// READDIR: one entry
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			require.Equal(t, packetReaddir, typ)
			w := &wireWriter{}
			w.PutUint32(1)
			w.PutString("a.txt")
			w.PutString("-rw-r--r-- 1 bob staff 1 Jan 1 2021 a.txt")
			a := &attrs{haveSize: true, size: 1, havePerms: true, perms: 0100644}
			a.pack(w, 3)
			return packetName, w.Bytes()
		})
		// READDIR: EOF
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			return packetStatus, statusReply(statusEOF, "")
		})
		// CLOSE
		serveOnce(t, srv, func(typ byte, id uint32, payload []byte) (byte, []byte) {
			require.Equal(t, packetClose, typ)
			return packetStatus, statusReply(statusOK, "")
		})
	}()

	fs, err := c.List("/")
	require.NoError(t, err)
	require.Equal(t, 1, fs.Len())
	require.NotNil(t, fs.Get("a.txt"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake server never finished")
	}
}
