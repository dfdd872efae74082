// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command mbatchd is the cluster-wide master scheduler daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clusterbatch/batchsched/internal/host"
	"github.com/clusterbatch/batchsched/internal/mbd/adminhttp"
	"github.com/clusterbatch/batchsched/internal/queue"
	"github.com/clusterbatch/batchsched/internal/sched"
	"github.com/clusterbatch/batchsched/pkg/auth"
	"github.com/clusterbatch/batchsched/pkg/config"
	"github.com/clusterbatch/batchsched/pkg/logging"
	"github.com/clusterbatch/batchsched/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information, set at build time.
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	adminAddr     string
	adminToken    string
	tickInterval  time.Duration
	logMask       string

	rootCmd = &cobra.Command{
		Use:     "mbatchd",
		Short:   "Cluster-wide batch scheduler daemon",
		Long:    "mbatchd runs the pending/running job lists and the preemption elector, and serves a read-only admin HTTP surface.",
		Version: Version,
		RunE:    run,
	}
)

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime)

	rootCmd.PersistentFlags().StringVar(&adminAddr, "admin-addr", ":8080", "address the read-only admin HTTP surface listens on")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", "", "bearer token required of admin HTTP clients (env: BATCHSCHED_ADMIN_TOKEN); empty disables auth")
	rootCmd.PersistentFlags().DurationVar(&tickInterval, "tick-interval", 10*time.Second, "scheduling tick interval")
	rootCmd.PersistentFlags().StringVar(&logMask, "log-mask", "info", "minimum log level (debug, info, warning, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mbatchd version %s\n", Version)
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
	if tickInterval > 0 {
		cfg.TickInterval = tickInterval
	}
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
		Service: "mbatchd",
		Version: Version,
	})
	collector := metrics.NewInMemoryCollector()

	queues := queue.NewRegistry()
	hosts := host.NewRegistry()
	scheduler := sched.New(cfg, logger, collector, queues, hosts)

	if adminToken == "" {
		adminToken = os.Getenv("BATCHSCHED_ADMIN_TOKEN")
	}
	var provider auth.Provider = &auth.NoAuth{}
	if adminToken != "" {
		provider = auth.NewTokenAuth(adminToken)
	}
	adminServer := &http.Server{
		Addr:    adminAddr,
		Handler: adminhttp.NewServer(scheduler, provider, logger),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go scheduler.Run(ctx)

	go func() {
		logger.Info("admin http surface listening", "addr", adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin http surface failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return adminServer.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
