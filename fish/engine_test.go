package fish

import (
	"io"
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

func TestEngineChangeDir(t *testing.T) {
	c, _ := newTestClient("### 000\n")
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.NoError(t, eng.Open("/tmp", xfer.ChangeDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
	require.Equal(t, "/tmp", eng.Cwd())
}

func TestEngineListPopulatesFiles(t *testing.T) {
	body := "-rw-r--r-- 1 bob staff 10 Jan 1 2021 a.txt\n### 200\n"
	c, _ := newTestClient(body)
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.NoError(t, eng.Open("/", xfer.LongList, 0))
	require.Equal(t, xfer.OK, drive(t, eng))

	buf := make([]byte, 4096)
	n, err := eng.Read(buf)
	for err == nil && n == 0 {
		n, err = eng.Read(buf)
	}
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "a.txt")
	require.NotNil(t, eng.Files())
	require.Equal(t, 1, eng.Files().Len())
}

func TestEngineMakeDirRemoveDir(t *testing.T) {
	c, _ := newTestClient("### 000\n")
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))

	c, _ = newTestClient("### 000\n")
	eng = NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.NoError(t, eng.Open("/d", xfer.RemoveDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
}

func TestEngineOpenRejectsConcurrentUse(t *testing.T) {
	c, _ := newTestClient("### 000\n")
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	err := eng.Open("/d2", xfer.MakeDir, 0)
	require.Error(t, err)
	drive(t, eng)
}

func TestEngineStoreRequiresSizeBeforehand(t *testing.T) {
	c, _ := newTestClient("")
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	require.True(t, eng.NeedsSizeDateBeforehand())
	require.NoError(t, eng.Open("/f", xfer.Store, 0))
	require.Equal(t, xfer.NoFile, drive(t, eng))
}

func TestEngineWriteOutsideStoreFails(t *testing.T) {
	c, _ := newTestClient("### 000\n")
	eng := NewEngine(c, xfer.Identity{Proto: "fish", Host: "h"})
	_, err := eng.Write([]byte("x"))
	require.Error(t, err)
}

var _ io.Reader = (*markerReader)(nil)
