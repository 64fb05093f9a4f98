// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

// Package nvram reads and mutates the firmware boot device selection menu
// through the efibootmgr tool.
package nvram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pop-os/kernelstub/drive"
)

// BootEntry is one line of the firmware boot-manager listing. BootNumber and
// Label are parsed leniently; lines that are not entry lines (BootOrder,
// Timeout and friends) keep empty values and the raw Line.
type BootEntry struct {
	BootNumber string // four hex digits, for example "0001"
	Label      string
	Line       string
}

// Runner runs an external command and captures its output streams.
type Runner interface {
	Run(name string, args ...string) (stdout, stderr string, err error)
}

// BootManager queries and mutates NVRAM boot entries. Entries are read fresh
// from the firmware on every query; nothing is cached.
type BootManager struct {
	run Runner
	log *logrus.Entry
}

// NewBootManager returns a BootManager which shells out through run.
func NewBootManager(run Runner, log *logrus.Entry) *BootManager {
	return &BootManager{run: run, log: log}
}

// EntryOptions describes a boot entry to be created.
type EntryOptions struct {
	Device          string // whole-disk device node, for example /dev/sda
	PartitionNumber int    // ESP partition number on that disk
	Label           string
	LoaderPath      string // loader image path relative to the ESP root
	RootUUID        string
	InitrdPath      string
	Cmdline         string
}

// LoadOptions renders the kernel load-option string passed to the firmware.
func (o EntryOptions) LoadOptions() string {
	return fmt.Sprintf("root=UUID=%s initrd=%s ro %s", o.RootUUID, o.InitrdPath, o.Cmdline)
}

func parseBootNumber(line string) (string, bool) {
	if !strings.HasPrefix(line, "Boot") || len(line) < 8 {
		return "", false
	}
	num := line[4:8]
	if _, err := strconv.ParseUint(num, 16, 16); err != nil {
		return "", false
	}
	return num, true
}

func parseEntry(line string) BootEntry {
	entry := BootEntry{Line: line}
	num, ok := parseBootNumber(line)
	if !ok {
		return entry
	}
	entry.BootNumber = num

	label := strings.TrimPrefix(line[8:], "*")
	label = strings.TrimLeft(label, " ")
	// Some firmwares append the device path after a tab.
	if i := strings.IndexByte(label, '\t'); i >= 0 {
		label = label[:i]
	}
	entry.Label = strings.TrimRight(label, " ")
	return entry
}

// List returns the current firmware listing, one provisional entry per line.
func (bm *BootManager) List() ([]BootEntry, error) {
	stdout, stderr, err := bm.run.Run("efibootmgr")
	if err != nil {
		return nil, &RegistryError{Op: "list", Stderr: stderr, ExitCode: drive.ExitCode(err), Err: err}
	}

	var entries []BootEntry
	for _, line := range strings.Split(strings.TrimRight(stdout, "\n"), "\n") {
		if line == "" {
			continue
		}
		entries = append(entries, parseEntry(line))
	}
	return entries, nil
}

// FindEntry returns the index of the first entry matching label. With exact
// set, the parsed label must equal label; otherwise a substring match against
// the raw line is used, which tolerates firmware-appended suffixes but can
// also match unrelated entries that merely contain label.
func FindEntry(entries []BootEntry, label string, exact bool) (int, error) {
	for i, entry := range entries {
		if exact {
			if entry.Label == label {
				return i, nil
			}
		} else if strings.Contains(entry.Line, label) {
			return i, nil
		}
	}
	return -1, &NotFoundError{Label: label}
}

// Find reads the current listing and locates label in it.
func (bm *BootManager) Find(label string, exact bool) (int, []BootEntry, error) {
	entries, err := bm.List()
	if err != nil {
		return -1, nil, err
	}
	index, err := FindEntry(entries, label, exact)
	if err != nil {
		return -1, entries, err
	}
	bm.log.Infof("found OS entry: %s", entries[index].Line)
	return index, entries, nil
}

// Delete removes the entry with the given four-hex-digit boot number. In
// dry-run mode nothing is invoked and a descriptive placeholder is returned.
func (bm *BootManager) Delete(bootNumber string, dryRun bool) (string, error) {
	if _, ok := parseBootNumber("Boot" + bootNumber); !ok {
		return "", &RegistryError{Op: "delete", Err: fmt.Errorf("invalid boot number %q", bootNumber)}
	}

	args := []string{"-B", "-b", bootNumber}
	if dryRun {
		return bm.simulate(args), nil
	}

	stdout, stderr, err := bm.run.Run("efibootmgr", args...)
	if err != nil {
		return "", &RegistryError{Op: "delete", Stderr: stderr, ExitCode: drive.ExitCode(err), Err: err}
	}
	return stdout, nil
}

// Add creates a fresh entry; the firmware assigns its boot number. The
// updated listing is returned as text. Same dry-run contract as Delete.
func (bm *BootManager) Add(opts EntryOptions, dryRun bool) (string, error) {
	args := []string{
		"-d", opts.Device,
		"-p", strconv.Itoa(opts.PartitionNumber),
		"-c",
		"-L", opts.Label,
		"-l", opts.LoaderPath,
		"-u", opts.LoadOptions(),
	}
	if dryRun {
		return bm.simulate(args), nil
	}

	stdout, stderr, err := bm.run.Run("efibootmgr", args...)
	if err != nil {
		return "", &RegistryError{Op: "add", Stderr: stderr, ExitCode: drive.ExitCode(err), Err: err}
	}
	return stdout, nil
}

func (bm *BootManager) simulate(args []string) string {
	command := "Simulating: efibootmgr " + strings.Join(args, " ")
	bm.log.Info(command)
	return command
}
