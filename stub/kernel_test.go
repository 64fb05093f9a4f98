// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package stub

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestFindLatestImage(t *testing.T) {
	memFs := afero.NewMemMapFs()
	appFs = MapFS{memFs}
	for _, name := range []string{
		"/boot/vmlinuz-5.4.0-9-generic",
		"/boot/vmlinuz-5.4.0-26-generic",
		"/boot/vmlinuz-4.15.0-142-generic",
		"/boot/initrd.img-5.4.0-26-generic",
		"/boot/config-5.4.0-26-generic",
	} {
		afero.WriteFile(memFs, name, []byte(name), 0644)
	}

	got, err := FindLatestImage("/boot", "vmlinuz-")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// String ordering would pick 5.4.0-9; version ordering must pick 5.4.0-26.
	if got != "/boot/vmlinuz-5.4.0-26-generic" {
		t.Errorf("Expected vmlinuz-5.4.0-26-generic, got %s", got)
	}

	got, err = FindLatestImage("/boot", "initrd.img-")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "/boot/initrd.img-5.4.0-26-generic" {
		t.Errorf("Expected initrd.img-5.4.0-26-generic, got %s", got)
	}
}

func TestFindLatestImage_none(t *testing.T) {
	memFs := afero.NewMemMapFs()
	appFs = MapFS{memFs}
	memFs.MkdirAll("/boot", 0755)

	if _, err := FindLatestImage("/boot", "vmlinuz-"); err == nil {
		t.Error("Expected error for empty /boot")
	}
}

func TestLoadDefaultCmdline(t *testing.T) {
	memFs := afero.NewMemMapFs()
	appFs = MapFS{memFs}
	afero.WriteFile(memFs, DefaultCmdlinePath, []byte("quiet splash\n# trailing comment\n"), 0644)

	cmdline, err := LoadDefaultCmdline()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cmdline != "quiet splash" {
		t.Errorf("Expected quiet splash, got %q", cmdline)
	}
}

func TestLoadDefaultCmdline_missing(t *testing.T) {
	memFs := afero.NewMemMapFs()
	appFs = MapFS{memFs}

	_, err := LoadDefaultCmdline()
	var cmdErr *CmdLineError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected CmdLineError, got %v", err)
	}
}
