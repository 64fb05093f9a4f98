// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package stub

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// FS abstracts away the filesystem.
//
// So we really wanted to use afero because it does all the magic for us, but it doubles
// our binary size, so that seems a tad much.
type FS interface {
	// Create behaves like os.Create()
	Create(path string) (io.WriteCloser, error)
	// MkdirAll behaves like os.MkdirAll()
	MkdirAll(path string, perm os.FileMode) error
	// Open behaves like os.Open()
	Open(path string) (io.ReadSeekCloser, error)
	// ReadDir behaves like os.ReadDir()
	ReadDir(path string) ([]os.DirEntry, error)
	// Remove behaves like os.Remove()
	Remove(path string) error
}

// realFS implements FS using the os package
type realFS struct{}

func (realFS) Create(path string) (io.WriteCloser, error)   { return os.Create(path) }
func (realFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (realFS) Open(path string) (io.ReadSeekCloser, error)  { return os.Open(path) }
func (realFS) ReadDir(path string) ([]os.DirEntry, error)   { return os.ReadDir(path) }
func (realFS) Remove(path string) error                     { return os.Remove(path) }

// appFs is our default FS
var appFs FS = realFS{}

// InstallImage copies src to dst if their contents differ.
//
// It returns true if the destination was written. A false return with a nil
// error means dst already held identical content, which keeps repeated runs
// from rewriting the ESP. If an error is returned the state of dst is
// unspecified.
func InstallImage(dst string, src string) (bool, error) {
	srcFile, err := appFs.Open(src)
	if err != nil {
		return false, fmt.Errorf("could not open source image: %w", err)
	}
	defer srcFile.Close()

	if needUpdate, err := needUpdateImage(dst, src, srcFile); !needUpdate {
		return false, err
	}

	dstFile, err := appFs.Create(dst)
	if err != nil {
		return false, fmt.Errorf("could not open %s for writing: %w", dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return false, fmt.Errorf("could not copy %s to %s: %w", src, dst, err)
	}
	return true, nil
}

func needUpdateImage(dst string, src string, srcFile io.ReadSeeker) (bool, error) {
	// To keep things simple, but not have the files in memory, just hash them
	dstHash := sha256.New()
	srcHash := sha256.New()

	dstFile, err := appFs.Open(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("could not open destination image: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstHash, dstFile); err != nil {
		return false, fmt.Errorf("could not hash destination image %s: %w", dst, err)
	}
	if _, err := io.Copy(srcHash, srcFile); err != nil {
		return false, fmt.Errorf("could not hash source image %s: %w", src, err)
	}
	if bytes.Equal(dstHash.Sum(nil), srcHash.Sum(nil)) {
		return false, nil
	}

	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("could not seek in source image %s: %w", src, err)
	}

	return true, nil
}

func readFirstLine(path string) (string, error) {
	file, err := appFs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	line := string(data)
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = string(data[:i])
	}
	return line, nil
}
