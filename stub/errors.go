// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package stub

import "fmt"

// Exit codes reported by the CLI for the corresponding failures.
const (
	ExitKernelCopy = 2
	ExitInitrdCopy = 3
	ExitNoCmdline  = 3
)

// FileOpsError reports a failed image copy. Code is the process exit code
// the failure maps to.
type FileOpsError struct {
	What string
	Code int
	Err  error
}

func (e *FileOpsError) Error() string {
	return fmt.Sprintf("could not copy the %s into the ESP: %v", e.What, e.Err)
}

func (e *FileOpsError) Unwrap() error { return e.Err }

// CmdLineError reports that no kernel parameters were available, either from
// the command line or from the configuration file.
type CmdLineError struct {
	Msg string
}

func (e *CmdLineError) Error() string { return e.Msg }
