package apply

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jvanz/mesos/internal/git"
	"github.com/jvanz/mesos/internal/shellquote"
	"github.com/jvanz/mesos/internal/terminal"
)

// Applier applies one review or pull request at a time: fetch the patch,
// apply it to the working tree, commit with metadata from the backend, and
// remove the patch file. Strictly sequential; any failure is fatal to the
// run and cleanup of the current patch file still happens.
type Applier struct {
	Backend Backend
	Logger  *terminal.Logger

	// HTTPClient downloads patches. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Out receives dry-run action reports. Defaults to os.Stdout.
	Out io.Writer
	// WorkDir is the working tree the patch is applied in. Empty means the
	// process working directory.
	WorkDir string

	// DryRun reports external actions instead of performing them. The patch
	// fetch and removal still run for a backend that needs the patch to
	// build commit metadata.
	DryRun bool
	// NoAmend suppresses opening the commit message in an editor.
	NoAmend bool
	// Interactive reports whether a terminal is attached; without one the
	// editor is never opened.
	Interactive bool
}

// ApplyOne runs the full protocol for a single identifier.
func (a *Applier) ApplyOne(ctx context.Context, id string) error {
	if a.Logger != nil {
		a.Logger.Logf(terminal.StylePhase, "Applying %s %s", a.Backend.Name(), id)
	}

	patchFile := filepath.Join(a.WorkDir, id+".patch")

	// Register removal before any step that can fail so the patch file
	// never outlives the review that owns it.
	defer a.removePatch(patchFile)

	if err := a.fetchPatch(ctx, id, patchFile); err != nil {
		return err
	}
	if err := a.applyPatch(ctx, patchFile); err != nil {
		return err
	}
	return a.commitPatch(ctx, id, patchFile)
}

// skipExternal reports whether an external patch-file action is suppressed.
// In dry-run mode fetch and removal still run when the backend recovers the
// author identity from the patch itself.
func (a *Applier) skipExternal() bool {
	return a.DryRun && !a.Backend.NeedsPatchForMetadata()
}

func (a *Applier) fetchPatch(ctx context.Context, id, patchFile string) error {
	url := a.Backend.PatchURL(id)
	if a.skipExternal() {
		a.reportf("fetch %s -> %s", url, patchFile)
		return nil
	}
	return a.download(ctx, url, patchFile)
}

// download fetches url into dest. A non-2xx status is fatal.
func (a *Applier) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	httpClient := a.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch patch from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("failed to fetch patch from %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}

func (a *Applier) applyPatch(ctx context.Context, patchFile string) error {
	if a.DryRun {
		a.reportf("git apply --index %s", shellquote.Single(patchFile))
		return nil
	}
	return git.Apply(ctx, a.WorkDir, patchFile)
}

func (a *Applier) commitPatch(ctx context.Context, id, patchFile string) error {
	// Metadata is built even in dry-run mode; only the commit itself is
	// suppressed.
	meta, err := a.Backend.CommitMetadata(ctx, id, patchFile)
	if err != nil {
		return err
	}

	edit := !a.NoAmend && a.Interactive
	if a.DryRun {
		a.reportf("%s", renderCommit(meta, edit))
		return nil
	}
	return git.Commit(ctx, a.WorkDir, git.CommitOptions{
		Author:  meta.Author,
		Message: meta.Message,
		Edit:    edit,
	})
}

// removePatch removes the patch file, best effort. Safe to run when the file
// was never created.
func (a *Applier) removePatch(patchFile string) {
	if a.skipExternal() {
		a.reportf("rm -f %s", patchFile)
		return
	}
	os.Remove(patchFile)
}

// renderCommit renders the commit command the way it would run, with author
// and message quoted for a shell context.
func renderCommit(meta *CommitMetadata, edit bool) string {
	var b strings.Builder
	b.WriteString("git commit --author ")
	b.WriteString(shellquote.Single(meta.Author))
	if edit {
		b.WriteString(" -e")
	}
	b.WriteString(" -am ")
	b.WriteString(shellquote.Single(meta.Message))
	return b.String()
}

func (a *Applier) reportf(format string, args ...any) {
	out := a.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format+"\n", args...)
}
