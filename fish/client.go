package fish

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gonzalop/xfer"
	"github.com/gonzalop/xfer/internal/sshproc"
)

// Options configures Dial.
type Options struct {
	User           string
	Port           string
	Password       string
	ConnectProgram string // defaults to "ssh", matching Fish.cc
	AutoConfirm    bool
}

// Client drives a blocking FISH conversation over one ssh subprocess: a
// synchronous command/reply driver that Engine wraps in goroutines to
// present a non-blocking xfer.Session, the same seam sftp.Client and
// webdav.Client are wrapped through.
type Client struct {
	proc   *sshproc.Proc
	login  *sshproc.LoginFilter
	w      io.Writer // the write side of the conversation; login outside tests
	reader *bufio.Reader

	home string
	cwd  string

	pending []expectKind
	message strings.Builder
}

// Dial starts the connect-program, logs in, and performs the #FISH/#VER/#PWD
// handshake (Fish.cc's CONNECTING/CONNECTED sequence).
func Dial(host string, opts Options) (*Client, error) {
	connectProgram := opts.ConnectProgram
	if connectProgram == "" {
		connectProgram = "ssh"
	}
	proc, err := sshproc.Launch(sshproc.Options{
		ConnectProgram: connectProgram,
		ServerProgram:  "echo FISH:;/bin/bash",
		User:           opts.User,
		Host:           host,
		Port:           opts.Port,
	})
	if err != nil {
		return nil, err
	}
	login := sshproc.NewLoginFilter(proc.PTY, opts.Password, opts.AutoConfirm)
	c := &Client{
		proc:   proc,
		login:  login,
		w:      login,
		reader: bufio.NewReader(login),
		cwd:    "~",
	}

	// The remote stub echoes "FISH:" (from the init command) before the
	// shell is interactive; once that line is seen, subsequent bytes are
	// protocol traffic so prompt-scanning must stop.
	if err := c.waitForBanner(); err != nil {
		proc.Wait()
		return nil, err
	}
	login.MarkLoggedIn()

	for _, cmd := range handshakeCommands(true) {
		if err := c.send(cmd); err != nil {
			proc.Wait()
			return nil, err
		}
		if err := c.readReplies(); err != nil {
			proc.Wait()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) waitForBanner() error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		line, err := c.reader.ReadString('\n')
		if strings.Contains(line, "FISH:") {
			return nil
		}
		if err != nil {
			if loginErr := c.login.Err(); loginErr != nil {
				return loginErr
			}
			return fmt.Errorf("fish: connection closed before banner: %w", err)
		}
	}
	return fmt.Errorf("fish: timed out waiting for banner")
}

func (c *Client) send(cmd command) error {
	if _, err := c.w.Write([]byte(cmd.text)); err != nil {
		return err
	}
	c.pending = append(c.pending, cmd.expects...)
	return nil
}

// reply is the parsed outcome of one "### NNN" marker: the free-form text
// that preceded it (possibly empty) and the numeric code.
type reply struct {
	kind expectKind
	code int
	text string
}

// readReplies consumes lines until every expectKind queued by the most
// recent send has been matched to a marker, discarding the replies and
// returning only the error, if any.
func (c *Client) readReplies() error {
	_, err := c.readUntilExpectsDrained()
	return err
}

func (c *Client) readUntilExpectsDrained() ([]reply, error) {
	var replies []reply
	for len(c.pending) > 0 {
		line, err := c.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" && err != nil {
			return replies, fmt.Errorf("fish: connection closed mid-reply: %w", err)
		}
		if code, ok := parseMarker(line); ok {
			kind := c.pending[0]
			c.pending = c.pending[1:]
			replies = append(replies, reply{kind: kind, code: code, text: c.message.String()})
			c.message.Reset()
			continue
		}
		if c.message.Len() > 0 {
			c.message.WriteByte('\n')
		}
		c.message.WriteString(line)
		if err != nil {
			return replies, fmt.Errorf("fish: connection closed mid-reply: %w", err)
		}
	}
	return replies, nil
}

func errorFromReply(cmd, text string) error {
	if text == "" {
		return nil
	}
	return xfer.NewError(xfer.NoFile, cmd, text)
}

// Cwd reports the last change-dir-confirmed directory.
func (c *Client) Cwd() string { return c.cwd }

// Home reports the login directory discovered during the handshake.
func (c *Client) Home() string { return c.home }

// ChangeDir runs "cd" remotely; FISH has no separate existence check so a
// failing cd surfaces as a NoFile error carrying the shell's stderr text.
func (c *Client) ChangeDir(path string) error {
	if err := c.send(cwdCommand(path)); err != nil {
		return err
	}
	replies, err := c.readUntilExpectsDrained()
	if err != nil {
		return err
	}
	r := replies[0]
	if err := errorFromReply("CWD", r.text); err != nil {
		return err
	}
	c.cwd = path
	return nil
}

// List runs a plain "ls" or long "ls -l" and returns the raw body plus a
// parsed FileSet.
func (c *Client) List(path string, long bool) ([]byte, *xfer.FileSet, error) {
	mode := xfer.List
	if long {
		mode = xfer.LongList
	}
	cmd, err := buildCommand(mode, path, "", 0, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := c.send(cmd); err != nil {
		return nil, nil, err
	}
	replies, err := c.readUntilExpectsDrained()
	if err != nil {
		return nil, nil, err
	}
	body := replies[0].text
	return []byte(body), parseLsFileSet(body, long), nil
}

// StatOne runs "ls -lLd" on a single path (FISH's ARRAY_INFO/RETR-info
// command) and returns its parsed FileInfo, or nil if the path doesn't
// exist.
func (c *Client) StatOne(path string) (*xfer.FileInfo, error) {
	cmd, err := buildCommand(xfer.ArrayInfo, path, "", 0, 0)
	if err != nil {
		return nil, err
	}
	if err := c.send(cmd); err != nil {
		return nil, err
	}
	replies, err := c.readUntilExpectsDrained()
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(replies[0].text)
	if text == "" {
		return nil, nil
	}
	return parseLsLine(text), nil
}

// Retrieve opens path for reading. It returns a reader for the raw file
// bytes (the body between "### 100" and "### 200") and the size/mtime
// reported by the preliminary "ls -lLd" the protocol always sends first.
func (c *Client) Retrieve(path string) (io.Reader, *xfer.FileInfo, error) {
	cmd, err := buildCommand(xfer.Retrieve, path, "", 0, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := c.send(cmd); err != nil {
		return nil, nil, err
	}
	// The first marker (### 100) ends the preliminary "ls -lLd" info; drain
	// just that one so the data stream proper can be read incrementally by
	// the caller instead of buffered whole here.
	info, err := c.readOneReply()
	if err != nil {
		return nil, nil, err
	}
	var fi *xfer.FileInfo
	trimmed := strings.TrimSpace(info.text)
	if trimmed != "" {
		fi = parseLsLine(trimmed)
	}
	return &markerReader{c: c}, fi, nil
}

func (c *Client) readOneReply() (reply, error) {
	for {
		line, err := c.reader.ReadString('\n')
		trimmedLine := strings.TrimRight(line, "\r\n")
		if code, ok := parseMarker(trimmedLine); ok {
			kind := c.pending[0]
			c.pending = c.pending[1:]
			r := reply{kind: kind, code: code, text: c.message.String()}
			c.message.Reset()
			return r, nil
		}
		if c.message.Len() > 0 {
			c.message.WriteByte('\n')
		}
		c.message.WriteString(trimmedLine)
		if err != nil {
			return reply{}, fmt.Errorf("fish: connection closed mid-reply: %w", err)
		}
	}
}

// markerReader streams Client.reader's bytes up to the terminating
// "### 200" marker, the way Fish.cc's Read scans for "### " in the raw
// buffer rather than waiting for a full line (the file content has no
// framing of its own).
type markerReader struct {
	c   *Client
	buf []byte
	eof bool
}

func (m *markerReader) Read(p []byte) (int, error) {
	if m.eof && len(m.buf) == 0 {
		return 0, io.EOF
	}
	for !m.eof && len(m.buf) < 4 {
		chunk := make([]byte, 4096)
		n, err := m.c.reader.Read(chunk)
		if n > 0 {
			m.buf = append(m.buf, chunk[:n]...)
		}
		if idx := indexMarker(m.buf); idx >= 0 {
			m.buf = m.buf[:idx]
			m.eof = true
			// Drain the trailing "### 200\n" line so the connection is
			// left positioned for the next command.
			m.c.reader.ReadString('\n')
			if len(m.c.pending) > 0 {
				m.c.pending = m.c.pending[1:]
			}
			break
		}
		if err != nil {
			m.eof = true
			break
		}
	}
	if len(m.buf) == 0 {
		if m.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

func indexMarker(b []byte) int {
	return strings.Index(string(b), "### ")
}

// Store writes size bytes from r to path.
func (c *Client) Store(path string, size int64, r io.Reader) error {
	cmd, err := buildCommand(xfer.Store, path, "", 0, size)
	if err != nil {
		return err
	}
	if err := c.send(cmd); err != nil {
		return err
	}
	prelim, err := c.readOneReply()
	if err != nil {
		return err
	}
	if err := errorFromReply("STOR", prelim.text); err != nil {
		return err
	}
	if _, err := io.CopyN(c.w, r, size); err != nil && err != io.EOF {
		return err
	}
	final, err := c.readOneReply()
	if err != nil {
		return err
	}
	return errorFromReply("STOR", final.text)
}

func (c *Client) simpleCommand(mode xfer.OpenMode, path, path2 string, chmodMode uint16) error {
	cmd, err := buildCommand(mode, path, path2, chmodMode, 0)
	if err != nil {
		return err
	}
	if err := c.send(cmd); err != nil {
		return err
	}
	replies, err := c.readUntilExpectsDrained()
	if err != nil {
		return err
	}
	return errorFromReply(fmt.Sprint(mode), replies[0].text)
}

func (c *Client) Remove(path string) error               { return c.simpleCommand(xfer.Remove, path, "", 0) }
func (c *Client) RemoveDir(path string) error             { return c.simpleCommand(xfer.RemoveDir, path, "", 0) }
func (c *Client) MakeDir(path string) error               { return c.simpleCommand(xfer.MakeDir, path, "", 0) }
func (c *Client) Rename(from, to string) error            { return c.simpleCommand(xfer.Rename, from, to, 0) }
func (c *Client) Chmod(path string, mode uint16) error    { return c.simpleCommand(xfer.ChangeMode, path, "", mode) }

// Quote runs an arbitrary command verbatim (FISH's #EXEC), returning its
// output.
func (c *Client) Quote(cmd string) (string, error) {
	built, err := buildCommand(xfer.QuoteCmd, cmd, "", 0, 0)
	if err != nil {
		return "", err
	}
	if err := c.send(built); err != nil {
		return "", err
	}
	replies, err := c.readUntilExpectsDrained()
	if err != nil {
		return "", err
	}
	return replies[0].text, nil
}

// Close terminates the ssh subprocess.
func (c *Client) Close() error { return c.proc.Wait() }
