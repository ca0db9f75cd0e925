// Package git provides the git operations the tool consumes: applying a
// patch to the index, committing with an explicit author, and reading the
// author header out of a patch file.
package git

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// GetRoot returns the root directory of the current git repository.
func GetRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Apply applies a patch file to the working tree and stages the changes.
func Apply(ctx context.Context, dir, patchFile string) error {
	cmd := exec.CommandContext(ctx, "git", "apply", "--index", patchFile)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		output := strings.TrimSpace(string(out))
		if output != "" {
			return fmt.Errorf("failed to apply patch %s: %s: %w", patchFile, output, err)
		}
		return fmt.Errorf("failed to apply patch %s: %w", patchFile, err)
	}
	return nil
}

// CommitOptions describes one commit.
type CommitOptions struct {
	// Author is the commit author as "Name <email>".
	Author string
	// Message is the full commit message.
	Message string
	// Edit opens the message in the configured editor before committing.
	Edit bool
}

// Commit commits the staged changes with the given author and message.
// When opts.Edit is set the commit runs attached to the caller's terminal so
// the editor can take over.
func Commit(ctx context.Context, dir string, opts CommitOptions) error {
	args := []string{"commit", "--author", opts.Author}
	if opts.Edit {
		args = append(args, "-e")
	}
	args = append(args, "-am", opts.Message)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	if opts.Edit {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		output := strings.TrimSpace(string(out))
		if output != "" {
			return fmt.Errorf("failed to commit: %s: %w", output, err)
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ReadPatchAuthor reads the author from the From header on the second line
// of a git format-patch file, returning it as "Name <email>".
func ReadPatchAuthor(patchFile string) (string, error) {
	f, err := os.Open(patchFile)
	if err != nil {
		return "", fmt.Errorf("failed to read patch %s: %w", patchFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if line == 2 {
			author := strings.TrimPrefix(scanner.Text(), "From: ")
			return strings.TrimRight(author, " \t"), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read patch %s: %w", patchFile, err)
	}
	return "", fmt.Errorf("patch %s has no author header", patchFile)
}
