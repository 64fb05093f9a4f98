// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

// Package stub installs a kernel and initrd onto the EFI System Partition
// and reconciles the firmware boot entry pointing at them, so the kernel can
// be booted directly through its EFI stub.
package stub

import (
	"errors"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pop-os/kernelstub/drive"
	"github.com/pop-os/kernelstub/nvram"
)

const (
	kernelImageName = "linux64.efi"
	initrdImageName = "initrd.img"
	cmdlineCopyName = "cmdline.txt"
	procCmdlinePath = "/proc/cmdline"
)

// State tracks how far an installation has progressed.
type State int

// Installation states, in order.
const (
	StateStart State = iota
	StateResolved
	StateStaged
	StateInstalled
	StateDone
)

// Registry is the slice of the firmware boot-entry interface the Manager
// needs. *nvram.BootManager implements it.
type Registry interface {
	Find(label string, exact bool) (int, []nvram.BootEntry, error)
	Delete(bootNumber string, dryRun bool) (string, error)
	Add(opts nvram.EntryOptions, dryRun bool) (string, error)
}

// Options configures a Manager run.
type Options struct {
	KernelPath string
	InitrdPath string
	Cmdline    string
	ESPPath    string
	DryRun     bool
	ExactMatch bool
}

// Manager drives one installation from identity resolution through staging
// the images to replacing the NVRAM entry.
//
// A run mutates the host's mount table, ESP filesystem and firmware NVRAM
// without any internal locking. Exactly one instance may run on a host at a
// time; concurrent invocations are unsafe.
type Manager struct {
	opts Options

	sys drive.SysInfo
	run drive.Runner
	reg Registry
	log *logrus.Entry

	state State

	// Facts established by Resolve.
	root       *drive.Drive
	esp        *drive.Drive
	rootUUID   string
	espPartNum int
	diskName   string
	osInfo     OSInfo
	label      string
	workDir    string
	osDir      string
}

// NewManager wires up a Manager. All collaborators are explicit; nothing is
// read from global state.
func NewManager(sys drive.SysInfo, run drive.Runner, reg Registry, log *logrus.Entry, opts Options) *Manager {
	return &Manager{opts: opts, sys: sys, run: run, reg: reg, log: log, state: StateStart}
}

// State returns the current installation state.
func (m *Manager) State() State { return m.state }

// Label returns the OS label established by Resolve.
func (m *Manager) Label() string { return m.label }

// Run performs a full installation.
func (m *Manager) Run() error {
	if err := m.Resolve(); err != nil {
		return err
	}
	if err := m.Stage(); err != nil {
		return err
	}
	if err := m.Install(); err != nil {
		return err
	}
	m.state = StateDone
	return nil
}

// Resolve establishes the facts an installation needs: the root and ESP
// drives, the root filesystem UUID, the ESP partition number and disk, and
// the OS label.
func (m *Manager) Resolve() error {
	var err error
	if m.root, err = drive.New(m.sys, m.run, m.log, "", "/"); err != nil {
		return err
	}
	if m.esp, err = drive.New(m.sys, m.run, m.log, "", m.opts.ESPPath); err != nil {
		return err
	}
	// The mount table can report a placeholder node for / (for example
	// /dev/root); the partition table knows the real one.
	if node, err := drive.NodeForPath(m.sys, "/"); err == nil && node != m.root.Node {
		m.log.Debugf("mount table reports %s for /, partition table reports %s", m.root.Node, node)
		m.root.Node = node
	}
	if m.rootUUID, err = m.root.UUID(); err != nil {
		return err
	}
	if m.espPartNum, err = m.esp.PartitionNumber(); err != nil {
		return err
	}
	if m.diskName, err = m.esp.DiskName(); err != nil {
		return err
	}
	if m.osInfo, err = LoadOSRelease(); err != nil {
		return err
	}
	m.label = m.osInfo.Label()
	m.osDir = m.osInfo.DirName() + "-kernelstub"
	m.workDir = filepath.Join(m.esp.MountPoint, "EFI", m.osDir)

	m.log.Infof("root FS is on      %s", m.root.Node)
	m.log.Infof("ESP data is on     %s", m.esp.Node)
	m.log.Infof("drive name is      %s", m.diskName)
	m.log.Infof("ESP partition #:   %d", m.espPartNum)
	m.log.Infof("root FS UUID is:   %s", m.rootUUID)
	m.log.Infof("OS running is:     %s", m.label)
	m.log.Infof("kernel params:     %s", m.opts.Cmdline)

	m.state = StateResolved
	return nil
}

// Stage copies the kernel and initrd images into the per-OS directory on the
// ESP. Image copy failures are fatal and happen before any NVRAM mutation; a
// failure to stage the cmdline diagnostic copy is logged and ignored.
func (m *Manager) Stage() error {
	if m.opts.DryRun {
		m.log.Infof("Simulate copying %s into %s", m.opts.KernelPath, m.workDir)
		m.log.Infof("Simulate copying %s into %s", m.opts.InitrdPath, m.workDir)
		m.state = StateStaged
		return nil
	}

	if err := appFs.MkdirAll(m.workDir, 0755); err != nil {
		return &FileOpsError{What: "kernel image", Code: ExitKernelCopy, Err: err}
	}

	m.log.Infof("copying %s into %s", m.opts.KernelPath, m.workDir)
	if _, err := InstallImage(filepath.Join(m.workDir, kernelImageName), m.opts.KernelPath); err != nil {
		return &FileOpsError{What: "kernel image", Code: ExitKernelCopy, Err: err}
	}

	m.log.Infof("copying %s into %s", m.opts.InitrdPath, m.workDir)
	if _, err := InstallImage(filepath.Join(m.workDir, initrdImageName), m.opts.InitrdPath); err != nil {
		return &FileOpsError{What: "initrd image", Code: ExitInitrdCopy, Err: err}
	}

	// Keep a copy of the running cmdline next to the images, so an operator
	// in an EFI shell can recover the parameters in an emergency.
	if _, err := InstallImage(filepath.Join(m.workDir, cmdlineCopyName), procCmdlinePath); err != nil {
		m.log.Warnf("could not copy the current kernel command line into the ESP, continuing without it: %v", err)
	}

	m.state = StateStaged
	return nil
}

// Install replaces any existing NVRAM entry for the OS label with a fresh
// one. Deleting before adding keeps repeated runs from accumulating
// duplicate entries.
func (m *Manager) Install() error {
	index, entries, err := m.reg.Find(m.label, m.opts.ExactMatch)
	var notFound *nvram.NotFoundError
	switch {
	case err == nil:
		bootNumber := entries[index].BootNumber
		if bootNumber == "" {
			// A substring match can land on a line that is not a boot
			// entry; there is nothing there to delete.
			m.log.Warnf("matched line %q is not a boot entry, not deleting it", entries[index].Line)
			break
		}
		m.log.Infof("deleting old boot entry Boot%s", bootNumber)
		out, err := m.reg.Delete(bootNumber, m.opts.DryRun)
		if err != nil {
			return err
		}
		m.log.Infof("new NVRAM:\n\n%s", out)
	case errors.As(err, &notFound):
		m.log.Info("no old entry to remove, skipping")
	default:
		return err
	}

	out, err := m.reg.Add(nvram.EntryOptions{
		Device:          "/dev/" + m.diskName,
		PartitionNumber: m.espPartNum,
		Label:           m.label,
		LoaderPath:      path.Join("/EFI", m.osDir, kernelImageName),
		RootUUID:        m.rootUUID,
		InitrdPath:      path.Join("EFI", m.osDir, initrdImageName),
		Cmdline:         m.opts.Cmdline,
	}, m.opts.DryRun)
	if err != nil {
		return err
	}
	m.log.Infof("new NVRAM:\n\n%s", out)

	m.state = StateInstalled
	return nil
}
