package webdav

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/gonzalop/xfer/internal/netutil"
)

// Options configures a Client (spec.md §4.6, §6.4 http:proxy/https:proxy).
type Options struct {
	// BaseURL is the scheme+host[:port] the client talks to, e.g.
	// "https://example.com". Its path, if any, is used as the initial cwd.
	BaseURL string

	User, Password string

	// Proxy, if non-empty, routes every request through internal/netutil's
	// dialer: an HTTP proxy is reached with a CONNECT tunnel for http:// and
	// https:// targets alike, a socks5:// proxy through SOCKS5.
	Proxy netutil.ProxyConfig

	BindIPv4, BindIPv6 string

	// MaxRedirections caps how many 3xx hops a single request follows
	// before the engine reports FileMoved instead of continuing
	// (spec.md §4.6 Redirect handling). 0 means the default of 5.
	MaxRedirections int

	// InsecureSkipVerify disables TLS certificate validation; only ever
	// set from an explicit user opt-out (ssl:verify-certificate=no).
	InsecureSkipVerify bool
}

// Client drives one logical HTTP/WebDAV session: a base URL, a cookie jar,
// and a redirect policy layered onto net/http the way ftp.Engine layers a
// command/reply protocol onto net.Conn.
type Client struct {
	http *http.Client
	base *url.URL

	user, pass string

	mu          sync.Mutex
	cwd         string
	usePropfind bool
}

// Dial builds a Client against opts.BaseURL. There is no network round trip
// here (net/http dials lazily per request); the name matches the sibling
// engines' Dial for symmetry.
func Dial(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("webdav: invalid base url: %w", err)
	}

	dialer := netutil.New(opts.Proxy, opts.BindIPv4, opts.BindIPv6)
	transport := &http.Transport{
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("webdav: cookie jar: %w", err)
	}

	maxRedir := opts.MaxRedirections
	if maxRedir <= 0 {
		maxRedir = 5
	}

	hc := &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedir {
				return errTooManyRedirects
			}
			return nil
		},
	}

	cwd := base.Path
	if cwd == "" {
		cwd = "/"
	}

	return &Client{
		http:        hc,
		base:        base,
		user:        opts.User,
		pass:        opts.Password,
		cwd:         cwd,
		usePropfind: true,
	}, nil
}

// errTooManyRedirects is returned by CheckRedirect to stop net/http from
// following another hop; it is recognized in classifyErr and turned into
// xfer.FileMoved rather than surfaced as a raw transport error.
var errTooManyRedirects = fmt.Errorf("webdav: too many redirects")

// resolve joins p (an absolute remote path) onto the client's base URL.
func (c *Client) resolve(p string) *url.URL {
	u := *c.base
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u.Path = p
	return &u
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(p).String(), body)
	if err != nil {
		return nil, err
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	return req, nil
}

// Get issues a (possibly resumable) GET for p, returning the response body
// positioned at pos when the server honors the Range header — the caller
// must check resp's status: 206 means the range was honored, 200 means the
// server ignored Range and sent the whole body from offset 0.
func (c *Client) Get(ctx context.Context, p string, pos int64) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, err
	}
	if pos > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", pos))
	}
	return c.http.Do(req)
}

// Put uploads body to p. When pos > 0 it sends a Content-Range header so a
// WebDAV server that supports partial PUT (rfc7233 isn't strictly defined
// for PUT, but most WebDAV servers accept it the way lftp's http.cc does)
// can resume an interrupted upload instead of restarting.
func (c *Client) Put(ctx context.Context, p string, pos int64, size int64, haveSize bool, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPut, p, body)
	if err != nil {
		return nil, err
	}
	if haveSize {
		req.ContentLength = size - pos
	}
	if pos > 0 {
		total := "*"
		if haveSize {
			total = strconv.FormatInt(size, 10)
		}
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%s/%s", pos, endOrStar(size, haveSize), total))
	}
	return c.http.Do(req)
}

func endOrStar(size int64, haveSize bool) string {
	if !haveSize {
		return "*"
	}
	return strconv.FormatInt(size-1, 10)
}

// Head issues a HEAD for p, the fallback existence/type check used once
// usePropfind has been flipped off for this host.
func (c *Client) Head(ctx context.Context, p string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodHead, p, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Propfind issues a PROPFIND with the given Depth ("0" or "1"). On a 400 or
// 501 response it flips usePropfind off for the lifetime of the Client, so
// later ChangeDir checks use Head instead, and List opens fail with
// NotSupported; no other listing method is tried (spec.md §4.6).
func (c *Client) Propfind(ctx context.Context, p, depth string) (*http.Response, error) {
	body := `<?xml version="1.0" encoding="utf-8"?><propfind xmlns="DAV:"><allprop/></propfind>`
	req, err := c.newRequest(ctx, "PROPFIND", p, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", depth)
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	resp, err := c.http.Do(req)
	if err == nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotImplemented) {
		c.mu.Lock()
		c.usePropfind = false
		c.mu.Unlock()
	}
	return resp, err
}

func (c *Client) UsePropfind() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usePropfind
}

// Mkcol issues a WebDAV MKCOL to create directory p.
func (c *Client) Mkcol(ctx context.Context, p string) (*http.Response, error) {
	req, err := c.newRequest(ctx, "MKCOL", p, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Delete issues a WebDAV DELETE (files and, with Depth:infinity implied by
// RFC 4918, empty or non-empty collections alike).
func (c *Client) Delete(ctx context.Context, p string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, p, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Move issues a WebDAV MOVE from p to newPath (both resolved against the
// same base), overwriting any existing destination.
func (c *Client) Move(ctx context.Context, p, newPath string) (*http.Response, error) {
	req, err := c.newRequest(ctx, "MOVE", p, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Destination", c.resolve(newPath).String())
	req.Header.Set("Overwrite", "T")
	return c.http.Do(req)
}

func (c *Client) Cwd() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwd
}

func (c *Client) SetCwd(p string) {
	c.mu.Lock()
	c.cwd = p
	c.mu.Unlock()
}

func (c *Client) Home() string { return "/" }

// joinPath resolves a possibly-relative p against the current directory,
// the way ftp.Engine does for commands that don't take an absolute path.
func (c *Client) joinPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(c.Cwd(), p)
}

// drainAndClose reads up to 1 MiB of what is left of resp.Body (so a
// connection with a short remaining body can return to the transport's
// keep-alive pool) and closes it.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
