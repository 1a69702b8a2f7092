package sshproc

import "errors"

var (
	errPasswordRequired          = errors.New("sshproc: password required")
	errLoginIncorrect            = errors.New("sshproc: login incorrect")
	errHostKeyVerificationFailed = errors.New("sshproc: host key verification failed")
)
