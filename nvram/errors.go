// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package nvram

import "fmt"

// RegistryError reports a failed firmware boot-manager invocation. A non-zero
// exit from the tool is a hard error; Stderr carries its diagnostic text.
type RegistryError struct {
	Op       string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *RegistryError) Error() string {
	msg := fmt.Sprintf("boot entry %s failed", e.Op)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\n%s\nefibootmgr return code: %d", e.Stderr, e.ExitCode)
	}
	return msg
}

func (e *RegistryError) Unwrap() error { return e.Err }

// NotFoundError reports that no entry in the listing matches a label.
type NotFoundError struct {
	Label string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no boot entry matches %q", e.Label)
}
