// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command sbatchd is the per-host job lifecycle daemon: it launches
// and reaps job tasks, binds them to cores, gates suspended jobs on
// their configured run windows, accepts rusage reports relayed by
// blaunch, and supervises the mbatchd master process.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/clusterbatch/batchsched/internal/corebind"
	"github.com/clusterbatch/batchsched/internal/rpc"
	"github.com/clusterbatch/batchsched/internal/sbd"
	"github.com/clusterbatch/batchsched/pkg/config"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	rusageAddr   string
	mbatchdPath  string
	numCores     int
	logMask      string

	rootCmd = &cobra.Command{
		Use:     "sbatchd",
		Short:   "Per-host job lifecycle daemon",
		Long:    "sbatchd launches and reaps job tasks on this host, binds them to cores, gates run windows, and supervises mbatchd.",
		Version: Version,
		RunE:    run,
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)

	rootCmd.PersistentFlags().StringVar(&rusageAddr, "rusage-addr", "127.0.0.1:9092", "address this host's rusage collector listens on for blaunch reports")
	rootCmd.PersistentFlags().StringVar(&mbatchdPath, "mbatchd-path", "mbatchd", "path to the mbatchd binary this daemon supervises as its master")
	rootCmd.PersistentFlags().IntVar(&numCores, "num-cores", runtime.NumCPU(), "number of CPU cores on this host available for binding")
	rootCmd.PersistentFlags().StringVar(&logMask, "log-mask", "info", "minimum log level (debug, info, warning, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sbatchd version %s\n", Version)
		if BuildTime != "" {
			fmt.Printf("Build Time: %s\n", BuildTime)
		}
		if Commit != "" {
			fmt.Printf("Commit:     %s\n", Commit)
		}
	},
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.NewDefault()
	cfg.Load()
	if logMask != "" {
		cfg.LogMask = logMask
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewLogger(&logging.Config{
		Level:   logging.ParseLevel(cfg.LogMask),
		Format:  logging.FormatText,
		Output:  os.Stdout,
		Service: "sbatchd",
		Version: Version,
	})

	var affinity corebind.AffinitySetter
	if runtime.GOOS == "linux" {
		affinity = corebind.NewUnixAffinitySetter()
	}
	binder := corebind.NewTable(numCores, affinity, logger)

	sup := sbd.NewSupervisor(cfg, binder, 256, logger)

	rpcServer := rpc.NewServer(sup, logger)
	ln, err := net.Listen("tcp", rusageAddr)
	if err != nil {
		return fmt.Errorf("listen on rusage address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("rusage collector listening", "addr", rusageAddr)
		if err := rpcServer.Serve(ctx, ln); err != nil {
			logger.Error("rusage collector stopped", "error", err)
		}
	}()

	// The master gets its own reaper: sharing sup.Reaper would race
	// DrainReaped and awaitMaster over the same completions channel.
	masterReaper := sbd.NewReaper(1)
	master := sbd.NewMasterSupervisor(func() *exec.Cmd {
		return exec.CommandContext(ctx, mbatchdPath)
	}, cfg.MaxSameExitStreak, nil, logger)
	go master.Run(ctx, masterReaper)

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sup.DrainReaped()
			sup.TickWindows(now)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
