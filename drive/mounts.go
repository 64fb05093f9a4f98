// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import "strings"

// MountRecord is a snapshot of one active mount.
type MountRecord struct {
	Node       string
	MountPoint string
	FSType     string
}

// MountTable is an ordered snapshot of the live mount table.
type MountTable []MountRecord

// ParseMountTable parses mount table text of the /proc/mounts shape:
// "node mount-point fstype options dump pass". Lines with fewer than three
// fields are skipped.
func ParseMountTable(text string) MountTable {
	var table MountTable
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		table = append(table, MountRecord{
			Node:       fields[0],
			MountPoint: fields[1],
			FSType:     fields[2],
		})
	}
	return table
}

// LoadMountTable reads and parses the live mount table.
func LoadMountTable(sys SysInfo) (MountTable, error) {
	text, err := sys.Mounts()
	if err != nil {
		return nil, &ResolutionError{Source: "/proc/mounts", Err: err}
	}
	return ParseMountTable(text), nil
}

// Resolve matches partial against each record's node and mount point and
// returns the full (node, mountPoint) pair of the first record that matches.
func (t MountTable) Resolve(partial string) (node, mountPoint string, err error) {
	for _, rec := range t {
		if rec.Node == partial || rec.MountPoint == partial {
			return rec.Node, rec.MountPoint, nil
		}
	}
	return "", "", &NotFoundError{Key: partial}
}

// HasNode reports whether node appears in the snapshot.
func (t MountTable) HasNode(node string) bool {
	for _, rec := range t {
		if rec.Node == node {
			return true
		}
	}
	return false
}
