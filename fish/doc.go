// Package fish implements a client for the FISH protocol: a line-oriented
// conversation driven over an interactive shell started by ssh. Every
// command is a pair of lines — a "#VERB ..." marker line for logging
// followed by the shell-equivalent command — and every reply ends with a
// line of the form "### NNN" where NNN classifies the outcome (000 ok,
// 100 info/data-begins, 200 end-of-stream, 500+ error).
//
// Client drives the blocking request/reply conversation; Engine adapts a
// Client to xfer.Session so it can be driven from the scheduler the same
// way webdav.Engine and sftp.Engine adapt their own clients.
package fish
