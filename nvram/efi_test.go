// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package nvram

import (
	"errors"

	"github.com/canonical/go-efilib"
	"gopkg.in/check.v1"
)

type mockEFIVariables struct {
	descriptors []efi.VariableDescriptor
	err         error
}

func (m mockEFIVariables) ListVariables() ([]efi.VariableDescriptor, error) {
	return m.descriptors, m.err
}

type efiSuite struct{}

var _ = check.Suite(&efiSuite{})

func (s *efiSuite) TestVariablesSupported(c *check.C) {
	restore := appEFIVars
	defer func() { appEFIVars = restore }()

	appEFIVars = mockEFIVariables{descriptors: []efi.VariableDescriptor{{Name: "BootOrder", GUID: efi.GlobalVariable}}}
	c.Check(VariablesSupported(), check.Equals, true)

	appEFIVars = mockEFIVariables{err: errors.New("no efivarfs")}
	c.Check(VariablesSupported(), check.Equals, false)
}
