// Package main provides the CLI entry point for apply-reviews.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jvanz/mesos/internal/terminal"
)

var version = "dev"

var (
	reviewID    string
	pullRequest string
	dryRun      bool
	noAmend     bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "apply-reviews",
		Short: "Recursively apply Review Board reviews and GitHub pull requests",
		Long: `Apply a chain of Review Board reviews, or a single GitHub pull request,
onto the current git working tree, committing each patch with metadata
derived from the review.

A Review Board review is applied together with its open ancestors, oldest
first; submitted ancestors are skipped. Only linear dependency chains are
supported.`,
		RunE:          runApply,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.Flags().StringVarP(&reviewID, "review-id", "r", "",
		"Numeric Review Board review ID")
	rootCmd.Flags().StringVarP(&pullRequest, "github", "g", "",
		"GitHub pull request number")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false,
		"Perform a dry run")
	rootCmd.Flags().BoolVarP(&noAmend, "no-amend", "n", false,
		"Do not amend the commit message")

	rootCmd.MarkFlagsMutuallyExclusive("review-id", "github")
	rootCmd.MarkFlagsOneRequired("review-id", "github")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitStatus(err)
	}
	return 0
}

// exitStatus maps an error onto the process exit code. A failed external
// command propagates its own exit status; everything else is 1.
func exitStatus(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func runApply(cmd *cobra.Command, _ []string) error {
	if !terminal.IsStderrTTY() {
		terminal.SetColorsEnabled(false)
	}

	logger := terminal.NewLogger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr)
		logger.Log("Interrupted, shutting down...", terminal.StyleWarning)
		cancel()
	}()

	opts := applyOpts{
		ReviewID:    reviewID,
		PullRequest: pullRequest,
		DryRun:      dryRun,
		NoAmend:     noAmend,
		Interactive: terminal.IsStderrTTY(),
	}

	return executeApply(ctx, opts, logger)
}
