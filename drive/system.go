// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

// Package drive resolves block device identity from the tables the kernel
// exposes: /proc/partitions, /proc/mounts and the sysfs block hierarchy.
package drive

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// SysInfo abstracts away the host-specific data sources used for device
// identity resolution, so the parsers can be tested against literal text.
type SysInfo interface {
	// Partitions returns the contents of the kernel partition table listing.
	Partitions() (string, error)
	// Mounts returns the contents of the live mount table.
	Mounts() (string, error)
	// DeviceNumbers returns the (major, minor) device numbers of the
	// filesystem that the given path lives on.
	DeviceNumbers(path string) (major, minor uint32, err error)
	// RealPath resolves path to its real, symlink-free form.
	RealPath(path string) (string, error)
	// BlockLink returns the sysfs link target for the named block device.
	BlockLink(name string) (string, error)
}

// RealSysInfo implements SysInfo against the running system.
type RealSysInfo struct{}

// Partitions proxy
func (RealSysInfo) Partitions() (string, error) {
	data, err := os.ReadFile("/proc/partitions")
	return string(data), err
}

// Mounts proxy
func (RealSysInfo) Mounts() (string, error) {
	data, err := os.ReadFile("/proc/mounts")
	return string(data), err
}

// DeviceNumbers stats path and splits st_dev into major and minor.
func (RealSysInfo) DeviceNumbers(path string) (uint32, uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, err
	}
	dev := uint64(st.Dev)
	return unix.Major(dev), unix.Minor(dev), nil
}

// RealPath proxy
func (RealSysInfo) RealPath(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// BlockLink reads the /sys/class/block symlink for name.
func (RealSysInfo) BlockLink(name string) (string, error) {
	return os.Readlink(filepath.Join("/sys/class/block", name))
}
