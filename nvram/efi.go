// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package nvram

import (
	"context"

	"github.com/canonical/go-efilib"
)

// EFIVariables abstracts away the host-specific bits of the efivars support
// probe.
type EFIVariables interface {
	ListVariables() ([]efi.VariableDescriptor, error)
}

// RealEFIVariables provides the real implementation of efivars
type RealEFIVariables struct{}

// ListVariables proxy
func (RealEFIVariables) ListVariables() ([]efi.VariableDescriptor, error) {
	return efi.ListVariables(context.Background())
}

// Chosen implementation
var appEFIVars EFIVariables = RealEFIVariables{}

// VariablesSupported indicates whether EFI variables can be accessed, in
// other words whether this system booted through EFI firmware at all.
func VariablesSupported() bool {
	_, err := appEFIVars.ListVariables()
	return err == nil
}
