package apply

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvanz/mesos/internal/github"
	"github.com/jvanz/mesos/internal/reviewboard"
	"github.com/jvanz/mesos/internal/terminal"
)

const testPatch = `From 1234567890abcdef1234567890abcdef12345678 Mon Sep 17 00:00:00 2001
From: Jane Dev <jane@example.org>
Date: Mon, 1 Jan 2024 00:00:00 +0000
Subject: [PATCH] Fix bug.

---
diff --git a/feature.txt b/feature.txt
new file mode 100644
index 0000000..257cc56
--- /dev/null
+++ b/feature.txt
@@ -0,0 +1 @@
+foo
`

// setupTestRepo creates a temporary git repository for testing.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	tmpDir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test.txt"), []byte("test content"), 0644))
	run("add", ".")
	run("commit", "-m", "initial commit")

	return tmpDir
}

func gitLog(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("git", "log", "--format=%an <%ae>%n%B")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out)
}

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	n := strings.TrimSpace(string(out))
	count := 0
	for _, c := range n {
		count = count*10 + int(c-'0')
	}
	return count
}

// newGitHubApplier serves PR metadata and the raw patch from one httptest
// server and returns an applier using a GitHub backend.
func newGitHubApplier(t *testing.T, workDir string, patchHits *atomic.Int32) (*Applier, *bytes.Buffer) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/example/project/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": "Fix bug", "body": "Details"}`))
	})
	mux.HandleFunc("/raw/example/project/pull/42.patch", func(w http.ResponseWriter, r *http.Request) {
		if patchHits != nil {
			patchHits.Add(1)
		}
		w.Write([]byte(testPatch))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	applier := &Applier{
		Backend: NewGitHubBackend(github.NewClient(srv.URL, srv.URL, "example/project")),
		Logger:  terminal.NewLoggerTo(&out),
		Out:     &out,
		WorkDir: workDir,
		NoAmend: true,
	}
	return applier, &out
}

// newReviewBoardApplier serves review metadata, the user lookup and the raw
// diff from one httptest server.
func newReviewBoardApplier(t *testing.T, workDir string, patchHits *atomic.Int32) (*Applier, *bytes.Buffer) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/review-requests/100/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"review_request": {
			"status": "pending",
			"summary": "Fix bug",
			"description": "Details",
			"depends_on": [],
			"links": {"submitter": {"title": "jdoe"}}
		}}`))
	})
	mux.HandleFunc("/api/users/jdoe/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user": {"fullname": "John Doe", "email": "jdoe@example.org"}}`))
	})
	mux.HandleFunc("/r/100/diff/raw/", func(w http.ResponseWriter, r *http.Request) {
		if patchHits != nil {
			patchHits.Add(1)
		}
		w.Write([]byte(testPatch))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	applier := &Applier{
		Backend: NewReviewBoardBackend(reviewboard.NewClient(srv.URL)),
		Logger:  terminal.NewLoggerTo(&out),
		Out:     &out,
		WorkDir: workDir,
		NoAmend: true,
	}
	return applier, &out
}

func TestApplyOne_GitHub_EndToEnd(t *testing.T) {
	repoDir := setupTestRepo(t)
	applier, _ := newGitHubApplier(t, repoDir, nil)

	require.NoError(t, applier.ApplyOne(context.Background(), "42"))

	log := gitLog(t, repoDir)
	assert.True(t, strings.HasPrefix(log, "Jane Dev <jane@example.org>"), "author in %q", log)
	assert.Contains(t, log, "Fix bug\n\nDetails\n\nThis closes: 42")

	// The patch file must not survive the review.
	_, err := os.Stat(filepath.Join(repoDir, "42.patch"))
	assert.True(t, os.IsNotExist(err), "expected 42.patch removed")
}

func TestApplyOne_ReviewBoard_EndToEnd(t *testing.T) {
	repoDir := setupTestRepo(t)
	applier, _ := newReviewBoardApplier(t, repoDir, nil)

	require.NoError(t, applier.ApplyOne(context.Background(), "100"))

	log := gitLog(t, repoDir)
	assert.True(t, strings.HasPrefix(log, "John Doe <jdoe@example.org>"), "author in %q", log)
	assert.Contains(t, log, "Fix bug\n\nDetails\n\nReview: ")

	_, err := os.Stat(filepath.Join(repoDir, "100.patch"))
	assert.True(t, os.IsNotExist(err), "expected 100.patch removed")
}

func TestApplyOne_DryRun_ReviewBoard_SkipsAllExternalActions(t *testing.T) {
	repoDir := setupTestRepo(t)
	var patchHits atomic.Int32
	applier, out := newReviewBoardApplier(t, repoDir, &patchHits)
	applier.DryRun = true

	require.NoError(t, applier.ApplyOne(context.Background(), "100"))

	// No patch download, no file, no commit.
	assert.Equal(t, int32(0), patchHits.Load())
	_, err := os.Stat(filepath.Join(repoDir, "100.patch"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 1, commitCount(t, repoDir))

	// Every step is reported.
	report := out.String()
	assert.Contains(t, report, "fetch ")
	assert.Contains(t, report, "git apply --index")
	assert.Contains(t, report, "git commit --author 'John Doe <jdoe@example.org>'")
	assert.Contains(t, report, "rm -f ")
}

func TestApplyOne_DryRun_GitHub_StillFetchesAndRemovesPatch(t *testing.T) {
	repoDir := setupTestRepo(t)
	var patchHits atomic.Int32
	applier, out := newGitHubApplier(t, repoDir, &patchHits)
	applier.DryRun = true

	require.NoError(t, applier.ApplyOne(context.Background(), "42"))

	// The patch is fetched even in dry-run (the only way to recover the
	// author identity), then removed again.
	assert.Equal(t, int32(1), patchHits.Load())
	_, err := os.Stat(filepath.Join(repoDir, "42.patch"))
	assert.True(t, os.IsNotExist(err), "expected 42.patch removed")

	// Apply and commit are still only reported.
	assert.Equal(t, 1, commitCount(t, repoDir))
	report := out.String()
	assert.Contains(t, report, "git apply --index")
	assert.Contains(t, report, "git commit --author 'Jane Dev <jane@example.org>'")
	assert.NotContains(t, report, "fetch ")
}

func TestApplyOne_FetchFailureIsFatal(t *testing.T) {
	repoDir := setupTestRepo(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	applier := &Applier{
		Backend: NewGitHubBackend(github.NewClient(srv.URL, srv.URL, "example/project")),
		WorkDir: repoDir,
		NoAmend: true,
	}

	err := applier.ApplyOne(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, 1, commitCount(t, repoDir))
}

func TestApplyOne_ApplyFailureStillCleansUp(t *testing.T) {
	repoDir := setupTestRepo(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/raw/example/project/pull/42.patch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a patch\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	applier := &Applier{
		Backend: NewGitHubBackend(github.NewClient(srv.URL, srv.URL, "example/project")),
		WorkDir: repoDir,
		NoAmend: true,
	}

	err := applier.ApplyOne(context.Background(), "42")
	require.Error(t, err)

	// The broken patch file must not be left behind.
	_, statErr := os.Stat(filepath.Join(repoDir, "42.patch"))
	assert.True(t, os.IsNotExist(statErr), "expected 42.patch removed after failure")
}
