// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Drive is a value-like handle on one block device or partition. It owns no
// resource of its own; every query reads the current system state through
// the SysInfo and Runner it was constructed with.
type Drive struct {
	Node       string
	MountPoint string

	sys SysInfo
	run Runner
	log *logrus.Entry
}

// New constructs a Drive from a device node, a mount point, or both.
//
// If only one of the two is given, the other is resolved once from the live
// mount table. If both are given they are trusted as-is, which lets a caller
// describe a device that is not mounted yet.
func New(sys SysInfo, run Runner, log *logrus.Entry, node, mountPoint string) (*Drive, error) {
	d := &Drive{Node: node, MountPoint: mountPoint, sys: sys, run: run, log: log}

	if node == "" && mountPoint == "" {
		return nil, &DriveError{Op: "resolve", Err: &NotFoundError{Key: "mount-point or node"}}
	}
	if node != "" && mountPoint != "" {
		return d, nil
	}

	partial := node
	if partial == "" {
		partial = mountPoint
	}
	mounts, err := LoadMountTable(sys)
	if err != nil {
		return nil, &DriveError{Op: "resolve", Node: partial, Err: err}
	}
	d.Node, d.MountPoint, err = mounts.Resolve(partial)
	if err != nil {
		return nil, &DriveError{Op: "resolve", Node: partial, Err: err}
	}
	d.log.Debugf("matched %s to %s mounted on %s", partial, d.Node, d.MountPoint)
	return d, nil
}

// NodeForPath maps a filesystem path to its device node through the kernel
// partition table. This is authoritative where the mount table is not: the
// mount table may report a placeholder node such as /dev/root.
func NodeForPath(sys SysInfo, path string) (string, error) {
	major, minor, err := sys.DeviceNumbers(path)
	if err != nil {
		return "", &ResolutionError{Source: path, Err: err}
	}
	table, err := LoadPartitionTable(sys)
	if err != nil {
		return "", err
	}
	name, err := table.PartitionName(major, minor)
	if err != nil {
		return "", err
	}
	return "/dev/" + name, nil
}

// IsMounted reports whether the node appears in the live mount table. The
// state is read fresh on every call, since it can change between calls.
func (d *Drive) IsMounted() (bool, error) {
	mounts, err := LoadMountTable(d.sys)
	if err != nil {
		return false, err
	}
	return mounts.HasNode(d.Node), nil
}

// lsblk draws its NAME column as a tree; these prefix runes have to go
// before the device name can be compared.
const treeGlyphs = "`|-│├└─ "

// UUID probes the filesystem UUID of the drive's node via lsblk.
func (d *Drive) UUID() (string, error) {
	d.log.Debugf("looking for UUID for node %s", d.Node)
	stdout, stderr, err := d.run.Run("lsblk", "-f", "-o", "NAME,UUID")
	if err != nil {
		return "", &DriveError{Op: "uuid", Node: d.Node, Stderr: stderr, ExitCode: ExitCode(err), Err: err}
	}
	want := filepath.Base(d.Node)
	for _, line := range strings.Split(stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.TrimLeft(fields[0], treeGlyphs) == want {
			return fields[len(fields)-1], nil
		}
	}
	return "", &DriveError{Op: "uuid", Node: d.Node, Err: &NotFoundError{Key: want}}
}

// DiskName returns the kernel name of the disk this partition lives on, by
// walking the sysfs block hierarchy. Device-mapper and other virtual devices
// have no physical parent, so for those the device's own name is returned.
func (d *Drive) DiskName() (string, error) {
	real, err := d.sys.RealPath(d.Node)
	if err != nil {
		return "", &DriveError{Op: "disk-name", Node: d.Node, Err: err}
	}
	partName := filepath.Base(real)
	link, err := d.sys.BlockLink(partName)
	if err != nil {
		return "", &DriveError{Op: "disk-name", Node: d.Node, Err: err}
	}
	diskPath := path.Dir(link)
	if strings.Contains(diskPath, "virtual") {
		return path.Base(link), nil
	}
	diskName := path.Base(diskPath)
	d.log.Debugf("this is a partition on /dev/%s", diskName)
	return diskName, nil
}

// PartitionNumber returns the partition index parsed from the trailing
// digits of the node name, so both sda12 and nvme0n1p3 resolve correctly.
func (d *Drive) PartitionNumber() (int, error) {
	name := filepath.Base(d.Node)
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, &DriveError{Op: "partition-number", Node: d.Node, Err: &NotFoundError{Key: "trailing partition digits in " + name}}
	}
	num, err := strconv.Atoi(name[i:])
	if err != nil {
		return 0, &DriveError{Op: "partition-number", Node: d.Node, Err: err}
	}
	return num, nil
}

// Mount mounts the drive. Arguments left empty default to the drive's own
// node and mount point; a supplied mountPoint replaces the stored one. An
// explicit fsType is passed through to the mount tool, otherwise the type is
// auto-detected.
//
// Callers should check IsMounted first; mounting an already-mounted node is
// not handled here.
func (d *Drive) Mount(mountPoint, node, fsType string) error {
	if node == "" {
		node = d.Node
	}
	if mountPoint == "" {
		mountPoint = d.MountPoint
	} else {
		d.MountPoint = mountPoint
	}

	d.log.Debugf("mounting drive %s to %s", node, mountPoint)

	var args []string
	if fsType != "" {
		args = append(args, "-t", fsType)
	}
	args = append(args, node, mountPoint)

	_, stderr, err := d.run.Run("mount", args...)
	if err != nil {
		return &DriveError{Op: "mount", Node: node, Stderr: stderr, ExitCode: ExitCode(err), Err: err}
	}
	return nil
}

// Unmount unmounts target, which may be a node or a mount point and defaults
// to the drive's own node.
func (d *Drive) Unmount(target string) error {
	if target == "" {
		target = d.Node
	}

	d.log.Debugf("unmounting %s", target)

	_, stderr, err := d.run.Run("umount", target)
	if err != nil {
		return &DriveError{Op: "umount", Node: target, Stderr: stderr, ExitCode: ExitCode(err), Err: err}
	}
	return nil
}
