// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package stub

import (
	"fmt"
	"path/filepath"
	"strings"

	version "github.com/knqyf263/go-deb-version"
)

// FindLatestImage scans dir for files named <prefix><version> and returns
// the path of the one with the highest version, so "vmlinuz-" picks the
// newest installed kernel. Candidates whose suffix is not a parseable
// version are compared lexicographically as a fallback.
func FindLatestImage(dir, prefix string) (string, error) {
	entries, err := appFs.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not scan %s for %s images: %w", dir, prefix, err)
	}

	var bestName string
	var bestVer version.Version
	haveVer := false
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || name == prefix {
			continue
		}
		ver, err := version.NewVersion(strings.TrimPrefix(name, prefix))
		if err != nil {
			if !haveVer && name > bestName {
				bestName = name
			}
			continue
		}
		if !haveVer || ver.GreaterThan(bestVer) {
			bestName, bestVer, haveVer = name, ver, true
		}
	}

	if bestName == "" {
		return "", fmt.Errorf("no %s image found in %s", prefix, dir)
	}
	return filepath.Join(dir, bestName), nil
}

// DefaultCmdlinePath is the file holding the default kernel parameters.
const DefaultCmdlinePath = "/etc/default/kernelstub"

// LoadDefaultCmdline reads the configured kernel parameters, used when none
// are given on the command line.
func LoadDefaultCmdline() (string, error) {
	line, err := readFirstLine(DefaultCmdlinePath)
	if err != nil {
		return "", &CmdLineError{Msg: "no kernel parameters found: " + err.Error()}
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", &CmdLineError{Msg: "no kernel parameters found in " + DefaultCmdlinePath}
	}
	return line, nil
}
