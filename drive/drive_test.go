// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package drive

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeSysInfo serves canned table text and sysfs links.
type fakeSysInfo struct {
	partitions    string
	partitionsErr error
	mounts        string
	mountsErr     error
	devNums       map[string]DevNum
	realPaths     map[string]string
	blockLinks    map[string]string
}

func (f fakeSysInfo) Partitions() (string, error) { return f.partitions, f.partitionsErr }
func (f fakeSysInfo) Mounts() (string, error)     { return f.mounts, f.mountsErr }

func (f fakeSysInfo) DeviceNumbers(path string) (uint32, uint32, error) {
	num, ok := f.devNums[path]
	if !ok {
		return 0, 0, errors.New("no device numbers for " + path)
	}
	return num.Major, num.Minor, nil
}

func (f fakeSysInfo) RealPath(path string) (string, error) {
	if real, ok := f.realPaths[path]; ok {
		return real, nil
	}
	return path, nil
}

func (f fakeSysInfo) BlockLink(name string) (string, error) {
	link, ok := f.blockLinks[name]
	if !ok {
		return "", errors.New("no such block device " + name)
	}
	return link, nil
}

// fakeRunner records invocations and replays canned results per command name.
type fakeRunner struct {
	calls   [][]string
	stdout  map[string]string
	stderr  map[string]string
	failing map[string]bool
}

func (f *fakeRunner) Run(name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failing[name] {
		return "", f.stderr[name], errors.New("exit status 32")
	}
	return f.stdout[name], f.stderr[name], nil
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

const procMounts = `/dev/sda2 / ext4 rw,relatime 0 0
/dev/sda1 /boot/efi vfat rw,relatime 0 0
tmpfs /run tmpfs rw,nosuid 0 0
`

const lsblkOutput = `NAME        UUID
sda
├─sda1      E0D0-5A5C
└─sda2      5m8trL-Nmg1-g3Fc
dm-0        1b2c56c3-2f34-4deb-a964-2s1c3b2a4deb
`

func TestNew_fromMountPoint(t *testing.T) {
	sys := fakeSysInfo{mounts: procMounts}
	d, err := New(sys, &fakeRunner{}, testLog(), "", "/boot/efi")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Node != "/dev/sda1" || d.MountPoint != "/boot/efi" {
		t.Errorf("Expected /dev/sda1 on /boot/efi, got %s on %s", d.Node, d.MountPoint)
	}
}

func TestNew_fromNode(t *testing.T) {
	sys := fakeSysInfo{mounts: procMounts}
	d, err := New(sys, &fakeRunner{}, testLog(), "/dev/sda1", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.MountPoint != "/boot/efi" {
		t.Errorf("Expected /boot/efi, got %s", d.MountPoint)
	}
}

func TestNew_bothSuppliedTrusted(t *testing.T) {
	// No mount table consultation happens when both halves are given.
	sys := fakeSysInfo{mountsErr: errors.New("should not be read")}
	d, err := New(sys, &fakeRunner{}, testLog(), "/dev/sdb1", "/mnt/new")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.Node != "/dev/sdb1" || d.MountPoint != "/mnt/new" {
		t.Errorf("Unexpected identity: %s on %s", d.Node, d.MountPoint)
	}
}

func TestNew_unknown(t *testing.T) {
	sys := fakeSysInfo{mounts: procMounts}
	var driveErr *DriveError
	if _, err := New(sys, &fakeRunner{}, testLog(), "", "/mnt/nowhere"); !errors.As(err, &driveErr) {
		t.Fatalf("Expected DriveError, got %v", err)
	}
	if _, err := New(sys, &fakeRunner{}, testLog(), "", ""); !errors.As(err, &driveErr) {
		t.Fatalf("Expected DriveError, got %v", err)
	}
}

func TestDrive_equivalentConstruction(t *testing.T) {
	// A Drive built from a node and one built from the matching mount point
	// must agree on UUID and disk name.
	sys := fakeSysInfo{
		mounts:     procMounts,
		blockLinks: map[string]string{"sda1": "../../devices/pci0000:00/0000:00:17.0/ata1/host0/target0:0:0/0:0:0:0/block/sda/sda1"},
	}
	run := &fakeRunner{stdout: map[string]string{"lsblk": lsblkOutput}}

	fromNode, err := New(sys, run, testLog(), "/dev/sda1", "")
	if err != nil {
		t.Fatal(err)
	}
	fromMount, err := New(sys, run, testLog(), "", "/boot/efi")
	if err != nil {
		t.Fatal(err)
	}

	for _, d := range []*Drive{fromNode, fromMount} {
		uuid, err := d.UUID()
		if err != nil {
			t.Fatalf("Could not resolve UUID: %v", err)
		}
		if uuid != "E0D0-5A5C" {
			t.Errorf("Expected E0D0-5A5C, got %s", uuid)
		}
		disk, err := d.DiskName()
		if err != nil {
			t.Fatalf("Could not resolve disk name: %v", err)
		}
		if disk != "sda" {
			t.Errorf("Expected sda, got %s", disk)
		}
	}
}

func TestDrive_uuidNoMatch(t *testing.T) {
	sys := fakeSysInfo{mounts: procMounts}
	run := &fakeRunner{stdout: map[string]string{"lsblk": lsblkOutput}}
	d, err := New(sys, run, testLog(), "/dev/sdz9", "/mnt")
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.UUID()
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected a not-found failure, got %v", err)
	}
}

func TestDrive_diskNameVirtual(t *testing.T) {
	sys := fakeSysInfo{
		mounts:     procMounts,
		realPaths:  map[string]string{"/dev/mapper/data-root": "/dev/dm-0"},
		blockLinks: map[string]string{"dm-0": "../../devices/virtual/block/dm-0"},
	}
	d, err := New(sys, &fakeRunner{}, testLog(), "/dev/mapper/data-root", "/")
	if err != nil {
		t.Fatal(err)
	}

	disk, err := d.DiskName()
	if err != nil {
		t.Fatalf("Could not resolve disk name: %v", err)
	}
	if disk != "dm-0" {
		t.Errorf("Expected dm-0, got %s", disk)
	}
}

func TestDrive_partitionNumber(t *testing.T) {
	for _, tc := range []struct {
		node string
		want int
	}{
		{"/dev/sda1", 1},
		{"/dev/sda12", 12},
		{"/dev/nvme0n1p3", 3},
	} {
		d := &Drive{Node: tc.node, log: testLog()}
		got, err := d.PartitionNumber()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.node, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.node, tc.want, got)
		}
	}

	d := &Drive{Node: "/dev/mapper/root", log: testLog()}
	if _, err := d.PartitionNumber(); err == nil {
		t.Error("Expected error for a node without trailing digits")
	}
}

func TestNodeForPath(t *testing.T) {
	sys := fakeSysInfo{
		partitions: procPartitions,
		devNums:    map[string]DevNum{"/": {8, 2}},
	}

	node, err := NodeForPath(sys, "/")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if node != "/dev/sda2" {
		t.Errorf("Expected /dev/sda2, got %s", node)
	}

	if _, err := NodeForPath(sys, "/mnt"); err == nil {
		t.Error("Expected error for a path with no device numbers")
	}

	var notFound *NotFoundError
	sys.devNums["/srv"] = DevNum{42, 7}
	if _, err := NodeForPath(sys, "/srv"); !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestDrive_isMountedFreshSnapshot(t *testing.T) {
	sys := &mutableSysInfo{mounts: procMounts}
	d, err := New(sys, &fakeRunner{}, testLog(), "/dev/sda1", "")
	if err != nil {
		t.Fatal(err)
	}

	mounted, err := d.IsMounted()
	if err != nil || !mounted {
		t.Fatalf("Expected mounted, got %v, %v", mounted, err)
	}

	// Unmount behind the Drive's back; the next read must see it.
	sys.mounts = strings.Replace(procMounts, "/dev/sda1 /boot/efi vfat rw,relatime 0 0\n", "", 1)
	mounted, err = d.IsMounted()
	if err != nil || mounted {
		t.Fatalf("Expected unmounted, got %v, %v", mounted, err)
	}
}

type mutableSysInfo struct {
	fakeSysInfo
	mounts string
}

func (m *mutableSysInfo) Mounts() (string, error) { return m.mounts, nil }

func TestDrive_mountDefaultsAndFailure(t *testing.T) {
	sys := fakeSysInfo{mounts: procMounts}
	run := &fakeRunner{}
	d, err := New(sys, run, testLog(), "/dev/sdb1", "/mnt/target")
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Mount("", "", ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{"mount", "/dev/sdb1", "/mnt/target"}
	if len(run.calls) != 1 || strings.Join(run.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, run.calls)
	}

	if err := d.Mount("/mnt/other", "", "vfat"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want = []string{"mount", "-t", "vfat", "/dev/sdb1", "/mnt/other"}
	if strings.Join(run.calls[1], " ") != strings.Join(want, " ") {
		t.Errorf("Expected %v, got %v", want, run.calls[1])
	}
	if d.MountPoint != "/mnt/other" {
		t.Errorf("Expected mount point to be replaced, got %s", d.MountPoint)
	}

	failing := &fakeRunner{
		failing: map[string]bool{"mount": true},
		stderr:  map[string]string{"mount": "mount: /mnt/target: permission denied."},
	}
	d.run = failing
	err = d.Mount("", "", "")
	var driveErr *DriveError
	if !errors.As(err, &driveErr) {
		t.Fatalf("Expected DriveError, got %v", err)
	}
	if driveErr.Stderr != "mount: /mnt/target: permission denied." {
		t.Errorf("Expected stderr to be carried, got %q", driveErr.Stderr)
	}
}

func TestDrive_unmountDefaultsToNode(t *testing.T) {
	run := &fakeRunner{}
	d := &Drive{Node: "/dev/sdb1", MountPoint: "/mnt/target", run: run, log: testLog()}

	if err := d.Unmount(""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(run.calls[0], " ") != "umount /dev/sdb1" {
		t.Errorf("Expected umount /dev/sdb1, got %v", run.calls[0])
	}
}
