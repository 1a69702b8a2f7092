package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientGetHonorsRangeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bytes=10-", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))
	defer srv.Close()

	cl, err := Dial(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := cl.Get(context.Background(), "/f.txt", 10)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "partial", string(body))
}

func TestClientPropfindFlipsOffOn400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PROPFIND", r.Method)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cl, err := Dial(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	require.True(t, cl.UsePropfind())

	_, err = cl.Propfind(context.Background(), "/d", "1")
	require.NoError(t, err)
	require.False(t, cl.UsePropfind())
}

func TestClientRedirectCapStopsFollowing(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	cl, err := Dial(Options{BaseURL: srv.URL, MaxRedirections: 2})
	require.NoError(t, err)

	_, err = cl.Get(context.Background(), "/f.txt", 0)
	require.Error(t, err)
}

func TestClientMoveSetsDestinationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "MOVE", r.Method)
		require.Contains(t, r.Header.Get("Destination"), "/b.txt")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cl, err := Dial(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := cl.Move(context.Background(), "/a.txt", "/b.txt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
