package main

import (
	"context"

	"github.com/jvanz/mesos/internal/apply"
	"github.com/jvanz/mesos/internal/chain"
	"github.com/jvanz/mesos/internal/config"
	"github.com/jvanz/mesos/internal/git"
	"github.com/jvanz/mesos/internal/github"
	"github.com/jvanz/mesos/internal/reviewboard"
	"github.com/jvanz/mesos/internal/terminal"
)

// applyOpts is the immutable run configuration derived from the command line.
type applyOpts struct {
	ReviewID    string
	PullRequest string
	DryRun      bool
	NoAmend     bool
	Interactive bool
}

func executeApply(ctx context.Context, opts applyOpts, logger *terminal.Logger) error {
	repoRoot, err := git.GetRoot()
	if err != nil {
		return err
	}

	result, err := config.Load(repoRoot)
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		logger.Log(warning, terminal.StyleWarning)
	}
	cfg := result.Config

	if opts.PullRequest != "" {
		return runPullRequest(ctx, cfg, opts, repoRoot, logger)
	}
	return runReviewChain(ctx, cfg, opts, repoRoot, logger)
}

// runReviewChain resolves the full ancestor chain of the requested review and
// applies every entry in order, oldest first.
func runReviewChain(ctx context.Context, cfg config.Config, opts applyOpts, repoRoot string, logger *terminal.Logger) error {
	client := reviewboard.NewClient(cfg.ReviewBoardURL)

	entries, err := chain.Resolve(ctx, client, opts.ReviewID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Logf(terminal.StyleInfo, "Review %s is already submitted, nothing to apply", opts.ReviewID)
		return nil
	}

	applier := &apply.Applier{
		Backend:     apply.NewReviewBoardBackend(client),
		Logger:      logger,
		WorkDir:     repoRoot,
		DryRun:      opts.DryRun,
		NoAmend:     opts.NoAmend,
		Interactive: opts.Interactive,
	}

	applied := make(map[string]bool)
	if err := applyEntries(ctx, applier, entries, applied, logger); err != nil {
		return err
	}

	logger.Logf(terminal.StyleSuccess, "Applied %d review(s)", len(applied))
	return nil
}

// applyEntries applies each entry in order, skipping identifiers already in
// the applied set and recording the ones it applies. The set only ever
// grows; a failure mid-chain leaves the commits made so far in place, and
// re-running from the failed review resumes the chain.
func applyEntries(ctx context.Context, applier *apply.Applier, entries []chain.Entry, applied map[string]bool, logger *terminal.Logger) error {
	for _, entry := range entries {
		if applied[entry.ID] {
			continue
		}
		applied[entry.ID] = true

		logger.Logf(terminal.StyleInfo, "Review %s: %s", entry.ID, entry.Summary)
		if err := applier.ApplyOne(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// runPullRequest applies a single GitHub pull request.
func runPullRequest(ctx context.Context, cfg config.Config, opts applyOpts, repoRoot string, logger *terminal.Logger) error {
	client := github.NewClient(cfg.GitHubAPIURL, cfg.GitHubPatchURL, cfg.GitHubRepo)

	applier := &apply.Applier{
		Backend:     apply.NewGitHubBackend(client),
		Logger:      logger,
		WorkDir:     repoRoot,
		DryRun:      opts.DryRun,
		NoAmend:     opts.NoAmend,
		Interactive: opts.Interactive,
	}

	if err := applier.ApplyOne(ctx, opts.PullRequest); err != nil {
		return err
	}

	logger.Logf(terminal.StyleSuccess, "Applied pull request %s", opts.PullRequest)
	return nil
}
