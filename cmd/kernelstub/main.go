// This file is part of kernelstub
// Copyright 2018 System76, Inc.
// SPDX-License-Identifier: ISC

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pop-os/kernelstub/config"
	"github.com/pop-os/kernelstub/drive"
	"github.com/pop-os/kernelstub/nvram"
	"github.com/pop-os/kernelstub/stub"
)

var flags struct {
	kernelPath string
	initrdPath string
	cmdline    string
	espPath    string
	logPath    string
	logLevel   string
	verbose    bool
	simulate   bool
	exactMatch bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kernelstub",
		Short:         "Automatic kernel EFI stub manager",
		Long:          "Keeps a copy of the kernel and initrd on the EFI System Partition\nand maintains an NVRAM boot entry pointing at them, so the kernel can\nbe booted directly through its EFI stub.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVarP(&flags.kernelPath, "kernel-path", "k", "", "path to the kernel image (default: newest vmlinuz in /boot)")
	cmd.Flags().StringVarP(&flags.initrdPath, "initrd-path", "i", "", "path to the initrd image (default: newest initrd.img in /boot)")
	cmd.Flags().StringVarP(&flags.cmdline, "cmdline", "c", "", "kernel boot options (default: read from "+stub.DefaultCmdlinePath+")")
	cmd.Flags().StringVar(&flags.espPath, "esp-path", "", "mount point of the EFI System Partition (default: from configuration)")
	cmd.Flags().StringVarP(&flags.logPath, "log", "l", "/var/log/kernelstub.log", "path to the log file")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log file level: debug, info, warning, error")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "display extra information about the actions being performed")
	cmd.Flags().BoolVarP(&flags.simulate, "simulate", "s", false, "don't run any commands, just simulate them")
	cmd.Flags().BoolVar(&flags.exactMatch, "exact-match", false, "require the NVRAM entry label to match the OS label exactly")

	return cmd
}

func setupLogging() *logrus.Logger {
	logger := logrus.New()

	level := logrus.WarnLevel
	if flags.verbose {
		level = logrus.InfoLevel
	}
	if flags.logLevel != "" {
		if parsed, err := logrus.ParseLevel(flags.logLevel); err == nil {
			level = parsed
		} else {
			fmt.Fprintf(os.Stderr, "invalid log level %q, using default\n", flags.logLevel)
		}
	}
	logger.SetLevel(level)

	out := io.Writer(os.Stderr)
	if file, err := os.OpenFile(flags.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		out = io.MultiWriter(os.Stderr, file)
	}
	logger.SetOutput(out)

	return logger
}

func run(cmd *cobra.Command, args []string) error {
	logger := setupLogging()
	log := logger.WithField("component", "kernelstub")

	if !nvram.VariablesSupported() {
		return errors.New("EFI variables are not supported; this system either did not boot via EFI or efivarfs is unavailable")
	}

	cfg, err := config.Load(afero.NewOsFs(), config.DefaultPath, logger.WithField("component", "config"))
	if err != nil {
		return err
	}

	espPath := flags.espPath
	if espPath == "" {
		espPath = cfg.ESPPath
	}

	// Kernel parameters first; without them there is nothing safe to do.
	cmdline := flags.cmdline
	if cmdline == "" {
		cmdline, err = stub.LoadDefaultCmdline()
		if err != nil {
			log.Error("no kernel parameters were given with -c and none are configured; " +
				"create " + stub.DefaultCmdlinePath + " with the required parameters and rerun kernelstub")
			return err
		}
	}

	kernelPath := flags.kernelPath
	if kernelPath == "" {
		log.Info("no kernel specified, attempting automatic discovery")
		if kernelPath, err = stub.FindLatestImage("/boot", "vmlinuz-"); err != nil {
			return err
		}
	}
	initrdPath := flags.initrdPath
	if initrdPath == "" {
		log.Info("no initrd specified, attempting automatic discovery")
		if initrdPath, err = stub.FindLatestImage("/boot", "initrd.img-"); err != nil {
			return err
		}
	}

	runner := drive.NewRunner()
	registry := nvram.NewBootManager(runner, logger.WithField("component", "nvram"))
	manager := stub.NewManager(drive.RealSysInfo{}, runner, registry, logger.WithField("component", "stub"), stub.Options{
		KernelPath: kernelPath,
		InitrdPath: initrdPath,
		Cmdline:    cmdline,
		ESPPath:    espPath,
		DryRun:     flags.simulate,
		ExactMatch: flags.exactMatch,
	})

	return manager.Run()
}

func exitCode(err error) int {
	var fileErr *stub.FileOpsError
	if errors.As(err, &fileErr) {
		return fileErr.Code
	}
	var cmdErr *stub.CmdLineError
	if errors.As(err, &cmdErr) {
		return stub.ExitNoCmdline
	}
	return 1
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}
