package pool_test

import (
	"testing"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/pool"
	"github.com/stretchr/testify/require"
)

// fakeSession is the minimal xfer.Session stub needed to exercise the
// pool without a real protocol engine.
type fakeSession struct {
	closed bool
	id     xfer.Identity
}

func (f *fakeSession) Open(string, xfer.OpenMode, int64) error { return nil }
func (f *fakeSession) Close() error                            { f.closed = true; return nil }
func (f *fakeSession) Read([]byte) (int, error)                 { return 0, nil }
func (f *fakeSession) Write([]byte) (int, error)                { return 0, nil }
func (f *fakeSession) Done() xfer.Kind                          { return xfer.OK }
func (f *fakeSession) Rename(string, string) error              { return nil }
func (f *fakeSession) Mkdir(string, bool) error                 { return nil }
func (f *fakeSession) Chdir(string, bool) error                 { return nil }
func (f *fakeSession) Chmod(string, uint16) error               { return nil }
func (f *fakeSession) Remove(string) error                      { return nil }
func (f *fakeSession) RemoveDir(string) error                   { return nil }
func (f *fakeSession) SetDate(time.Time) error                  { return nil }
func (f *fakeSession) SetSize(int64) error                      { return nil }
func (f *fakeSession) WantSize() error                          { return nil }
func (f *fakeSession) WantDate() error                          { return nil }
func (f *fakeSession) Size() (int64, bool)                      { return 0, false }
func (f *fakeSession) ModTime() (time.Time, bool)                { return time.Time{}, false }
func (f *fakeSession) Cwd() string                               { return "/" }
func (f *fakeSession) Home() string                              { return "/" }
func (f *fakeSession) SetAsciiTransfer(bool)                     {}
func (f *fakeSession) SetLimit(int64)                            {}
func (f *fakeSession) SetPriority(int)                           {}
func (f *fakeSession) IsConnected() bool                         { return true }
func (f *fakeSession) CanSeek(int64) bool                        { return true }
func (f *fakeSession) Seek(int64) error                          { return nil }
func (f *fakeSession) SeekPos() int64                            { return 0 }
func (f *fakeSession) RealPos() int64                            { return 0 }
func (f *fakeSession) Buffered() int                             { return 0 }
func (f *fakeSession) PutEOF() error                             { return nil }
func (f *fakeSession) RemoveFile() error                         { return nil }
func (f *fakeSession) IOReady() bool                             { return false }
func (f *fakeSession) NeedsSizeDateBeforehand() bool              { return false }
func (f *fakeSession) Error() *xfer.Error                        { return nil }
func (f *fakeSession) Identity() xfer.Identity                   { return f.id }

func testIdentity() xfer.Identity {
	return xfer.Identity{Proto: "ftp", Host: "example.com", Port: "21", User: "anon", PassHash: "x"}
}

func TestPutAndTakeSameSite(t *testing.T) {
	p := pool.New(4)
	sess := &fakeSession{id: testIdentity()}
	p.Put(sess, testIdentity(), "/pub", 0, "")

	got, ok := p.Take(testIdentity(), "/pub")
	require.True(t, ok)
	require.Same(t, xfer.Session(sess), got)
	require.Equal(t, 0, p.Len())
}

func TestTakeMissReturnsFalse(t *testing.T) {
	p := pool.New(4)
	_, ok := p.Take(testIdentity(), "/pub")
	require.False(t, ok)
}

func TestTakePrefersMatchingCwd(t *testing.T) {
	p := pool.New(4)
	id := testIdentity()
	other := &fakeSession{id: id}
	match := &fakeSession{id: id}
	p.Put(other, id, "/elsewhere", 0, "")
	p.Put(match, id, "/pub", 0, "")

	got, ok := p.Take(id, "/pub")
	require.True(t, ok)
	require.Same(t, xfer.Session(match), got)
}

func TestPoolEvictsWeakestWhenFull(t *testing.T) {
	p := pool.New(1)
	id := testIdentity()

	weak := &fakeSession{id: id}
	p.Put(weak, id, "", 0, "") // no known cwd: weaker

	strong := &fakeSession{id: id}
	p.Put(strong, id, "/pub", 0, "") // known cwd: stronger, should win

	require.True(t, weak.closed)
	require.False(t, strong.closed)
	require.Equal(t, 1, p.Len())

	got, ok := p.Take(id, "/pub")
	require.True(t, ok)
	require.Same(t, xfer.Session(strong), got)
}

func TestSlotPinning(t *testing.T) {
	p := pool.New(4)
	id := testIdentity()
	sess := &fakeSession{id: id}
	p.Put(sess, id, "/pub", 0, "mirror1")

	_, ok := p.TakeSlot("nonexistent")
	require.False(t, ok)

	got, ok := p.TakeSlot("mirror1")
	require.True(t, ok)
	require.Same(t, xfer.Session(sess), got)
}

func TestTakeoverRequiresLowerPriorityAndIdleTime(t *testing.T) {
	p := pool.New(4)
	id := testIdentity()
	sess := &fakeSession{id: id}
	p.Put(sess, id, "/pub", 1, "")

	// Requester priority not high enough relative to owner.
	_, ok := p.Takeover(1, time.Millisecond)
	require.False(t, ok)

	// Higher priority but not idle long enough yet.
	_, ok = p.Takeover(5, time.Hour)
	require.False(t, ok)

	// Higher priority and idle requirement satisfied immediately (0).
	got, ok := p.Takeover(5, 0)
	require.True(t, ok)
	require.Same(t, xfer.Session(sess), got)
}

func TestCloseDestroysAllIdle(t *testing.T) {
	p := pool.New(4)
	id := testIdentity()
	a, b := &fakeSession{id: id}, &fakeSession{id: id}
	p.Put(a, id, "/a", 0, "")
	p.Put(b, id, "/b", 0, "")

	p.Close()

	require.True(t, a.closed)
	require.True(t, b.closed)
	require.Equal(t, 0, p.Len())
}
