// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command blaunch is the parallel task launcher: it resolves a host
// list, starts one task per host, and monitors them to completion,
// periodically reporting an aggregate rusage snapshot to the local
// host daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/clusterbatch/batchsched/internal/launcher"
	"github.com/clusterbatch/batchsched/internal/procharvest"
	"github.com/clusterbatch/batchsched/internal/rpc"
	"github.com/clusterbatch/batchsched/pkg/config"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/pool"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	hostsFlag   string
	hostFile    string
	sbdAddr     string
	logMask     string
)

var rootCmd = &cobra.Command{
	Use:     "blaunch [-z \"host1 host2 ...\" | -u hostfile | host] command [args...]",
	Short:   "Launch a task on one or more hosts in parallel",
	Version: Version,
	Args:    cobra.MinimumNArgs(1),
	RunE:    run,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)

	// SetInterspersed(false) stops pflag from parsing dash-prefixed
	// arguments that belong to the launched command as blaunch's own
	// flags, per spec.md §6's "-z/-u/positional, then the command and
	// its own arguments verbatim" contract.
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.Flags().StringVarP(&hostsFlag, "z", "z", "", "space-separated list of hosts to launch on")
	rootCmd.Flags().StringVarP(&hostFile, "u", "u", "", "file listing hosts to launch on, one per line")
	rootCmd.Flags().StringVar(&sbdAddr, "sbd-addr", "", "override the local host daemon's rusage collector address")
	rootCmd.PersistentFlags().StringVar(&logMask, "log-mask", "info", "minimum log level (debug, info, warning, error)")
}

func run(cmd *cobra.Command, args []string) error {
	jobIDEnv := os.Getenv("LSB_JOBID")
	if jobIDEnv == "" {
		return fmt.Errorf("blaunch: LSB_JOBID is not set; blaunch must run under a job's environment")
	}
	var jobID int64
	if _, err := fmt.Sscanf(jobIDEnv, "%d", &jobID); err != nil {
		return fmt.Errorf("blaunch: invalid LSB_JOBID %q: %w", jobIDEnv, err)
	}

	cfg := config.NewDefault()
	cfg.Load()
	if logMask != "" {
		cfg.LogMask = logMask
	}
	logger := logging.NewLogger(&logging.Config{
		Level:   logging.ParseLevel(cfg.LogMask),
		Format:  logging.FormatText,
		Output:  os.Stdout,
		Service: "blaunch",
		Version: Version,
	})

	hostSrc := launcher.HostListSource{HostsFlag: hostsFlag, HostFilePath: hostFile}
	taskArgs := args
	if hostsFlag == "" && hostFile == "" {
		if len(args) < 2 {
			return fmt.Errorf("blaunch: no command given to launch")
		}
		hostSrc.Positional = args[:1]
		taskArgs = args[1:]
	}

	hosts, err := launcher.ResolveHosts(hostSrc, nil)
	if err != nil {
		return err
	}

	addr := sbdAddr
	if addr == "" {
		addr = os.Getenv("LSB_SBD_RUSAGE_ADDR")
	}

	harvester := procharvest.NewHarvester(procharvest.NewProcfsReader(), procharvest.SystemPageSize(), procharvest.SystemClockTicks())
	executor := launcher.NewLocalExecutor(harvester)

	var sender launcher.RusageSender
	if addr != "" {
		rpcPool := pool.NewConnPool(nil, nil, logger)
		sender = &rusageSenderAdapter{client: rpc.NewClient(rpcPool, logger)}
	}

	l := &launcher.Launcher{
		Executor:     executor,
		Sender:       sender,
		SBDAddr:      addr,
		JobID:        int32(jobID),
		PollInterval: cfg.BlaunchSleepTime,
		Logger:       logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, runErr := l.Run(ctx, hosts, taskArgs)
	if runErr != nil {
		logger.Error("blaunch run failed", "error", runErr)
		os.Exit(-1)
	}
	os.Exit(code)
	return nil
}

// rusageSenderAdapter adapts internal/rpc.Client's Opcode-typed return
// to the plain int32 launcher.RusageSender expects, so launcher need
// not import internal/rpc to define its collaborator interface.
type rusageSenderAdapter struct {
	client *rpc.Client
}

func (a *rusageSenderAdapter) SendRusage(ctx context.Context, addr string, jobID int32, r procharvest.Rusage) (int32, error) {
	status, err := a.client.SendRusage(ctx, addr, jobID, r)
	return int32(status), err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
