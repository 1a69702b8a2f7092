package netutil

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// dialHTTPConnect reaches addr by issuing an HTTP CONNECT through proxyURL
// (spec.md §4.6: "CONNECT host:port for HTTPS proxying with
// Proxy-Authorization: Basic if credentials are set").
func dialHTTPConnect(ctx context.Context, bd *net.Dialer, proxyURL *url.URL, addr string) (net.Conn, error) {
	host := proxyURL.Host
	if proxyURL.Port() == "" {
		host = net.JoinHostPort(proxyURL.Hostname(), "3128")
	}
	conn, err := bd.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("netutil: dial proxy %s: %w", host, err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if proxyURL.User != nil {
		pass, _ := proxyURL.User.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(proxyURL.User.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+creds)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netutil: write CONNECT: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("netutil: read CONNECT response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("netutil: proxy CONNECT to %s failed: %s", addr, resp.Status)
	}
	return conn, nil
}
