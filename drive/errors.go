// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import "fmt"

// NotFoundError reports that a lookup key has no matching record.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record found for %s", e.Key)
}

// ResolutionError reports that a system data source could not be read.
type ResolutionError struct {
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DriveError reports a failed drive operation. Stderr and ExitCode carry the
// diagnostics of the external tool when one was involved.
type DriveError struct {
	Op       string
	Node     string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *DriveError) Error() string {
	msg := fmt.Sprintf("drive %s: %s failed", e.Node, e.Op)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\n%s\n%s return code: %d", e.Stderr, e.Op, e.ExitCode)
	}
	return msg
}

func (e *DriveError) Unwrap() error { return e.Err }
