// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package stub

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// OSInfo identifies the running distribution.
type OSInfo struct {
	Name    string // os-release NAME, for example "Pop!_OS"
	Version string // os-release VERSION_ID, for example "18.04"
}

// Label is the human-readable label used for the NVRAM boot entry.
func (o OSInfo) Label() string {
	return o.Name + " " + o.Version
}

// DirName is the OS part of the per-OS ESP directory name. Spaces are not
// welcome in EFI paths.
func (o OSInfo) DirName() string {
	return strings.ReplaceAll(o.Name, " ", "_")
}

// ParseOSRelease parses os-release text into an OSInfo. Values may be
// quoted; comments and malformed lines are skipped.
func ParseOSRelease(text string) OSInfo {
	var info OSInfo
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "NAME":
			info.Name = value
		case "VERSION_ID":
			info.Version = value
		}
	}
	return info
}

// LoadOSRelease reads the distribution identity from /etc/os-release, with
// the usual /usr/lib fallback.
func LoadOSRelease() (OSInfo, error) {
	for _, path := range []string{"/etc/os-release", "/usr/lib/os-release"} {
		file, err := appFs.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return OSInfo{}, fmt.Errorf("could not open %s: %w", path, err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return OSInfo{}, fmt.Errorf("could not read %s: %w", path, err)
		}
		info := ParseOSRelease(string(data))
		if info.Name == "" {
			return OSInfo{}, fmt.Errorf("%s carries no NAME field", path)
		}
		return info, nil
	}
	return OSInfo{}, fmt.Errorf("no os-release file found")
}
