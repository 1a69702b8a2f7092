package webdav

import (
	"io"
	"net/http"
	"net/http/httptest"
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

func newEngine(t *testing.T, srv *httptest.Server) *Engine {
	t.Helper()
	cl, err := Dial(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return NewEngine(cl, xfer.Identity{Proto: "http", Host: "h"})
}

func TestEngineRetrieveReadsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	eng := newEngine(t, srv)
	require.NoError(t, eng.Open("/f.txt", xfer.Retrieve, 0))
	require.Equal(t, xfer.OK, drive(t, eng))

	got, err := io.ReadAll(readerOf(eng))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	eng.Close()
}

// readerOf adapts Engine.Read into an io.Reader for io.ReadAll in tests.
func readerOf(eng *Engine) io.Reader {
	return readerFunc(eng.Read)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func TestEngineStoreSendsBody(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	eng := newEngine(t, srv)
	require.NoError(t, eng.SetSize(4))
	require.NoError(t, eng.Open("/f.txt", xfer.Store, 0))
	n, err := eng.Write([]byte("data"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, eng.PutEOF())
	require.Equal(t, xfer.OK, drive(t, eng))
	require.Equal(t, "data", <-received)
}

func TestEngineMakeDirAndRemoveDir(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	eng := newEngine(t, srv)
	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
	require.Equal(t, "MKCOL", method)

	require.NoError(t, eng.Open("/d", xfer.RemoveDir, 0))
	require.Equal(t, xfer.OK, drive(t, eng))
	require.Equal(t, http.MethodDelete, method)
}

func TestEngineChmodUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("Chmod must not hit the network")
	}))
	defer srv.Close()

	eng := newEngine(t, srv)
	err := eng.Chmod("/f.txt", 0644)
	require.Error(t, err)
	var xe *xfer.Error
	require.ErrorAs(t, err, &xe)
	require.Equal(t, xfer.NotSupported, xe.Kind)
}

func TestEngineOpenRejectsConcurrentUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	eng := newEngine(t, srv)
	require.NoError(t, eng.Open("/d", xfer.MakeDir, 0))
	err := eng.Open("/d2", xfer.MakeDir, 0)
	require.Error(t, err)
	drive(t, eng)
}

func TestEngineCanSeekTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	eng := newEngine(t, srv)
	require.True(t, eng.CanSeek(100))
	require.False(t, eng.NeedsSizeDateBeforehand())
}
