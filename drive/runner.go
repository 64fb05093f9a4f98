// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
)

// Runner runs an external command and captures its output streams.
type Runner interface {
	Run(name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands directly via os/exec.
type ExecRunner struct{}

// Run proxy
func (ExecRunner) Run(name string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	return out.String(), errOut.String(), err
}

// SudoRunner prefixes every command with sudo, for running the privileged
// mount and firmware tools from an unprivileged process.
type SudoRunner struct{}

// Run proxy
func (SudoRunner) Run(name string, args ...string) (string, string, error) {
	return ExecRunner{}.Run("sudo", append([]string{name}, args...)...)
}

// NewRunner picks a runner appropriate for the current privileges.
func NewRunner() Runner {
	if os.Geteuid() == 0 {
		return ExecRunner{}
	}
	return SudoRunner{}
}

// ExitCode extracts the exit status from a Runner error, or -1 if the
// command never ran.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
