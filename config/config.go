// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

// Package config persists the kernelstub system configuration and generates
// the loader menu configuration on the ESP.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// CurrentRevision is the configuration format revision this version of the
// tool understands.
const CurrentRevision = 4

// DefaultPath is where the system configuration lives.
const DefaultPath = "/etc/kernelstub/system"

// ConfigError reports bad or missing configuration.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SystemConfiguration is the persisted system state.
type SystemConfiguration struct {
	ConfigRev    int    `json:"config_rev"`
	ESPPath      string `json:"esp_path"`
	DefaultEntry string `json:"default_entry"`
	MenuTimeout  int    `json:"menu_timeout"`

	fs   afero.Fs
	path string
	log  *logrus.Entry
}

// Load reads the configuration at path, or initializes and saves defaults if
// no file exists yet. An unknown config_rev is an error, not a guess.
func Load(fs afero.Fs, path string, log *logrus.Entry) (*SystemConfiguration, error) {
	cfg := &SystemConfiguration{fs: fs, path: path, log: log}

	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		log.Warnf("no configuration found in %s, setting defaults", path)
		cfg.ConfigRev = CurrentRevision
		cfg.ESPPath = "/boot/efi"
		cfg.MenuTimeout = 0
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, &ConfigError{Msg: "cannot read configuration " + path, Err: err}
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Msg: "cannot parse configuration " + path, Err: err}
	}
	if cfg.ConfigRev != CurrentRevision {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid configuration, config_rev %d is not understood", cfg.ConfigRev)}
	}
	log.Debugf("loaded configuration from %s", path)
	return cfg, nil
}

// Save writes the configuration back to disk and regenerates the loader
// configuration on the ESP.
func (c *SystemConfiguration) Save() error {
	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return &ConfigError{Msg: "cannot create configuration directory", Err: err}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return &ConfigError{Msg: "cannot encode configuration", Err: err}
	}
	if err := afero.WriteFile(c.fs, c.path, data, 0644); err != nil {
		return &ConfigError{Msg: "cannot write configuration " + c.path, Err: err}
	}

	if err := c.writeLoaderConf(); err != nil {
		return err
	}
	c.log.Debugf("saved configuration to %s and written to ESP", c.path)
	return nil
}

func (c *SystemConfiguration) writeLoaderConf() error {
	path := filepath.Join(c.ESPPath, "loader", "loader.conf")
	if err := c.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ConfigError{Msg: "cannot create loader directory", Err: err}
	}

	var b strings.Builder
	b.WriteString("## THIS FILE IS AUTOMATICALLY GENERATED!\n")
	b.WriteString("## To modify this file, use `kernelstub`\n\n")
	fmt.Fprintf(&b, "default %s\n", c.DefaultEntry)
	fmt.Fprintf(&b, "timeout %d\n", c.MenuTimeout)

	if err := afero.WriteFile(c.fs, path, []byte(b.String()), 0644); err != nil {
		return &ConfigError{Msg: "cannot write " + path, Err: err}
	}
	return nil
}
