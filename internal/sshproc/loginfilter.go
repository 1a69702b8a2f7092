package sshproc

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// LoginFilter wraps a Proc's pty, intercepting ssh's interactive
// password/host-key prompts and answering them automatically, the way
// SSH_Access.cc's HandleSSHMessage/IsPasswordPrompt/IsConfirmPrompt do
// before handing the stream to the protocol parser. Once login completes
// (LoggedIn returns true) Read simply relays the underlying pty.
type LoginFilter struct {
	rw io.ReadWriter

	mu           sync.Mutex
	pending      []byte // unconsumed bytes already read from rw, not yet a full line
	loggedIn     bool
	password     string
	autoConfirm  bool
	passwordSent bool

	// err is set if a prompt indicates an unrecoverable login failure
	// (e.g. a second password prompt meaning the first was rejected).
	err error
}

// NewLoginFilter wraps rw (normally a *PTY). password is sent once if a
// "...'s password:" or "Enter passphrase" prompt is seen; autoConfirm
// answers a "(yes/no)?" host-key prompt with "yes" when true, "no"
// otherwise (matching ssh:auto-confirm, spec.md §6.4).
func NewLoginFilter(rw io.ReadWriter, password string, autoConfirm bool) *LoginFilter {
	return &LoginFilter{rw: rw, password: password, autoConfirm: autoConfirm}
}

// Err returns the login failure recorded by the filter, if any.
func (f *LoginFilter) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// MarkLoggedIn stops prompt scanning; callers call this once the protocol's
// own handshake (e.g. SFTP's FXP_VERSION, FISH's "### 200" marker) proves
// the remote side is now speaking the wire protocol rather than a login
// shell.
func (f *LoginFilter) MarkLoggedIn() {
	f.mu.Lock()
	f.loggedIn = true
	f.mu.Unlock()
}

// Read implements io.Reader. Before login completes, it consumes and
// answers interactive prompts instead of returning their bytes to the
// caller; once logged in it is a direct passthrough to the underlying pty.
func (f *LoginFilter) Read(p []byte) (int, error) {
	f.mu.Lock()
	loggedIn := f.loggedIn
	f.mu.Unlock()
	if loggedIn {
		return f.rw.Read(p)
	}

	for {
		f.mu.Lock()
		if idx := bytes.IndexByte(f.pending, '\n'); idx >= 0 {
			line := f.pending[:idx]
			f.pending = f.pending[idx+1:]
			f.mu.Unlock()
			if err := f.handleLine(string(line)); err != nil {
				return 0, err
			}
			continue
		}
		// No full line yet: check the partial buffer for a prompt with no
		// trailing newline (ssh's password prompt never sends one).
		partial := string(f.pending)
		f.mu.Unlock()
		if isPasswordPrompt(partial) {
			if err := f.answerPassword(); err != nil {
				return 0, err
			}
			f.mu.Lock()
			f.pending = nil
			f.mu.Unlock()
			continue
		}

		buf := make([]byte, 4096)
		n, err := f.rw.Read(buf)
		if n > 0 {
			f.mu.Lock()
			f.pending = append(f.pending, buf[:n]...)
			f.mu.Unlock()
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
	}
}

func (f *LoginFilter) handleLine(line string) error {
	trimmed := strings.TrimRight(line, "\r")
	switch {
	case isPasswordPrompt(trimmed):
		return f.answerPassword()
	case isConfirmPrompt(trimmed):
		answer := "no\n"
		if f.autoConfirm {
			answer = "yes\n"
		}
		_, err := f.rw.Write([]byte(answer))
		return err
	case strings.HasPrefix(trimmed, "Host key verification failed"):
		f.mu.Lock()
		f.err = errHostKeyVerificationFailed
		f.mu.Unlock()
		return f.err
	}
	return nil
}

func (f *LoginFilter) answerPassword() error {
	f.mu.Lock()
	already := f.passwordSent
	pw := f.password
	f.mu.Unlock()
	if pw == "" {
		f.mu.Lock()
		f.err = errPasswordRequired
		f.mu.Unlock()
		return f.err
	}
	if already {
		f.mu.Lock()
		f.err = errLoginIncorrect
		f.mu.Unlock()
		return f.err
	}
	f.mu.Lock()
	f.passwordSent = true
	f.mu.Unlock()
	_, err := f.rw.Write([]byte(pw + "\n"))
	return err
}

// Write implements io.Writer, passed straight through.
func (f *LoginFilter) Write(p []byte) (int, error) { return f.rw.Write(p) }

// isPasswordPrompt mirrors SSH_Access.cc's IsPasswordPrompt: a line ending
// in "'s password" (minus a trailing space), or ending in ":" and
// containing "password"/"passphrase".
func isPasswordPrompt(s string) bool {
	s = strings.TrimSuffix(s, " ")
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "'s password") {
		return true
	}
	if strings.HasSuffix(s, ":") {
		return strings.Contains(lower, "password") || strings.Contains(lower, "passphrase")
	}
	return false
}

// isConfirmPrompt mirrors IsConfirmPrompt: a line ending in "?" mentioning
// "yes/no" (the ssh host-key-acceptance prompt).
func isConfirmPrompt(s string) bool {
	if s == "" || !strings.HasSuffix(s, "?") {
		return false
	}
	return strings.Contains(strings.ToLower(s), "yes/no")
}
