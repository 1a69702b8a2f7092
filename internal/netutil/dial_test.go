package netutil_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gonzalop/xfer/internal/netutil"
	"github.com/stretchr/testify/require"
)

func TestDialDirect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	d := netutil.New(netutil.ProxyConfig{}, "", "")
	conn, err := d.DialContext(context.Background(), "tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()
}

func TestDialThroughHTTPConnectProxy(t *testing.T) {
	// A target server the proxy will CONNECT through to.
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	go func() {
		c, err := target.Accept()
		if err == nil {
			c.Close()
		}
	}()

	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		destConn, err := net.Dial("tcp", r.Host)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		clientConn, _, err := hj.Hijack()
		require.NoError(t, err)
		clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		go func() {
			defer destConn.Close()
			defer clientConn.Close()
			buf := make([]byte, 256)
			destConn.Read(buf)
		}()
	}))
	defer proxySrv.Close()

	d := netutil.New(netutil.ProxyConfig{URL: "http://" + proxySrv.Listener.Addr().String()}, "", "")
	conn, err := d.DialContext(context.Background(), "tcp", target.Addr().String())
	require.NoError(t, err)
	conn.Close()
}
