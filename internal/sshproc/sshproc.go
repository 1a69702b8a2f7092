// Package sshproc spawns the ssh connect-program subprocess shared by the
// sftp and fish engines (spec.md §4.4/§4.5), talking to it over a
// pseudo-tty the way original_source/src/PtyShell.cc and SSH_Access.cc do:
// a pty lets a password or host-key prompt be seen and answered even
// though neither protocol's own framing has any room for that
// conversation.
package sshproc

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/creack/pty"
)

// Options configures the subprocess command line (spec.md §6.4's
// sftp:connect-program / sftp:server-program, and the fish/sftp equivalent).
type Options struct {
	// ConnectProgram is the local command used to reach the remote host,
	// e.g. "ssh -a -x" (the default, matching SFtp.cc) or a custom wrapper.
	ConnectProgram string
	// ServerProgram is the remote command to run once connected: a bare
	// name with no "/" is passed as an ssh subsystem request (-s), a path
	// is executed directly as the remote command.
	ServerProgram string
	User          string
	Host          string
	Port          string
}

const defaultConnectProgram = "ssh -a -x"

// BuildArgs assembles the connect-program argv exactly as
// original_source/src/SFtp.cc does: tokenize ConnectProgram, add "-s" if
// ServerProgram looks like a subsystem name (no "/"), then "-l user",
// "-p port", the host, and finally ServerProgram itself: the subsystem
// name that "-s" refers to, or the remote command when it is a path.
func BuildArgs(o Options) ([]string, error) {
	prog := o.ConnectProgram
	if prog == "" {
		prog = defaultConnectProgram
	}
	args := strings.Fields(prog)
	if len(args) == 0 {
		return nil, fmt.Errorf("sshproc: empty connect-program")
	}

	isSubsystem := o.ServerProgram != "" && !strings.Contains(o.ServerProgram, "/")
	if isSubsystem {
		args = append(args, "-s")
	}
	if o.User != "" {
		args = append(args, "-l", o.User)
	}
	if o.Port != "" {
		args = append(args, "-p", o.Port)
	}
	if o.Host == "" {
		return nil, fmt.Errorf("sshproc: Host is required")
	}
	args = append(args, o.Host)

	switch {
	case isSubsystem:
		args = append(args, o.ServerProgram)
	case o.ServerProgram != "":
		args = append(args, o.ServerProgram)
	}
	return args, nil
}

// Proc is a running connect-program subprocess and its pty.
type Proc struct {
	Cmd *exec.Cmd
	PTY *PTY
}

// Launch starts the connect-program described by o under a pty.
func Launch(o Options) (*Proc, error) {
	args, err := BuildArgs(o)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(cmd.Env, "LC_ALL=C", "LANG=C", "LANGUAGE=C")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("sshproc: start %s: %w", strings.Join(args, " "), err)
	}
	return &Proc{Cmd: cmd, PTY: &PTY{f: f}}, nil
}

// Wait releases the subprocess's resources once the caller is done, killing
// it first if it's still running.
func (p *Proc) Wait() error {
	p.PTY.f.Close()
	_ = p.Cmd.Process.Kill()
	return p.Cmd.Wait()
}
