// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import (
	"fmt"
	"strconv"
	"strings"
)

// DevNum is a (major, minor) device number pair.
type DevNum struct {
	Major uint32
	Minor uint32
}

// PartitionTable maps device numbers to kernel device names, as listed in
// /proc/partitions.
type PartitionTable map[DevNum]string

// ParsePartitionTable parses the kernel partition listing. Data lines have
// the shape "major minor blocks name"; header and separator lines do not
// parse as two integers and are skipped.
func ParsePartitionTable(text string) PartitionTable {
	table := make(PartitionTable)
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		major, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		minor, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		table[DevNum{uint32(major), uint32(minor)}] = fields[3]
	}
	return table
}

// LoadPartitionTable reads and parses the system partition listing.
func LoadPartitionTable(sys SysInfo) (PartitionTable, error) {
	text, err := sys.Partitions()
	if err != nil {
		return nil, &ResolutionError{Source: "/proc/partitions", Err: err}
	}
	return ParsePartitionTable(text), nil
}

// PartitionName returns the device name registered for (major, minor).
func (t PartitionTable) PartitionName(major, minor uint32) (string, error) {
	name, ok := t[DevNum{major, minor}]
	if !ok {
		return "", &NotFoundError{Key: fmt.Sprintf("device %d:%d", major, minor)}
	}
	return name, nil
}

// DiskName returns the whole-disk device name for the given major. The disk
// itself is listed at minor 0.
func (t PartitionTable) DiskName(major uint32) (string, error) {
	name, ok := t[DevNum{major, 0}]
	if !ok {
		return "", &NotFoundError{Key: fmt.Sprintf("disk with major %d", major)}
	}
	return name, nil
}
