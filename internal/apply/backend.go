// Package apply implements the per-review apply/commit protocol and the
// backends that supply patches and commit metadata.
package apply

import (
	"context"
	"fmt"
	"strings"

	"github.com/jvanz/mesos/internal/git"
	"github.com/jvanz/mesos/internal/github"
	"github.com/jvanz/mesos/internal/reviewboard"
)

// CommitMetadata is everything the commit step needs for one review.
type CommitMetadata struct {
	// Author is the commit author as "Name <email>".
	Author      string
	Summary     string
	Description string
	// URL is the canonical human-facing URL embedded in the message.
	URL string
	// Message is the assembled commit message.
	Message string
}

// Backend abstracts the two patch sources. A backend is selected once at
// startup; nothing else branches on the source kind.
type Backend interface {
	// Name identifies the backend in log output.
	Name() string
	// PatchURL returns the raw patch download URL for an identifier.
	PatchURL(id string) string
	// NeedsPatchForMetadata reports whether building commit metadata reads
	// the downloaded patch file. When true, the patch fetch and its cleanup
	// run even in dry-run mode.
	NeedsPatchForMetadata() bool
	// CommitMetadata builds the commit metadata for an identifier.
	// patchFile is the locally downloaded patch, already present when
	// NeedsPatchForMetadata is true.
	CommitMetadata(ctx context.Context, id, patchFile string) (*CommitMetadata, error)
}

// ReviewBoardBackend sources patches from a Review Board instance.
type ReviewBoardBackend struct {
	Client *reviewboard.Client
}

// NewReviewBoardBackend creates a Review Board backend.
func NewReviewBoardBackend(client *reviewboard.Client) *ReviewBoardBackend {
	return &ReviewBoardBackend{Client: client}
}

func (b *ReviewBoardBackend) Name() string { return "reviewboard" }

func (b *ReviewBoardBackend) PatchURL(id string) string { return b.Client.PatchURL(id) }

func (b *ReviewBoardBackend) NeedsPatchForMetadata() bool { return false }

// CommitMetadata fetches the review and resolves its submitter to a full
// name/email pair via the user endpoint.
func (b *ReviewBoardBackend) CommitMetadata(ctx context.Context, id, _ string) (*CommitMetadata, error) {
	review, err := b.Client.FetchReview(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := b.Client.FetchUser(ctx, review.Links.Submitter.Title)
	if err != nil {
		return nil, err
	}

	url := b.Client.ReviewURL(id)
	return &CommitMetadata{
		Author:      fmt.Sprintf("%s <%s>", user.Fullname, user.Email),
		Summary:     review.Summary,
		Description: review.Description,
		URL:         url,
		Message:     joinMessage(review.Summary, review.Description, "Review: "+url),
	}, nil
}

// GitHubBackend sources patches from GitHub pull requests.
type GitHubBackend struct {
	Client *github.Client
}

// NewGitHubBackend creates a GitHub backend.
func NewGitHubBackend(client *github.Client) *GitHubBackend {
	return &GitHubBackend{Client: client}
}

func (b *GitHubBackend) Name() string { return "github" }

func (b *GitHubBackend) PatchURL(id string) string { return b.Client.PatchURL(id) }

// NeedsPatchForMetadata is true: GitHub has no user-lookup endpoint, so the
// author identity comes from the From header of the downloaded patch.
func (b *GitHubBackend) NeedsPatchForMetadata() bool { return true }

func (b *GitHubBackend) CommitMetadata(ctx context.Context, id, patchFile string) (*CommitMetadata, error) {
	pr, err := b.Client.FetchPullRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	author, err := git.ReadPatchAuthor(patchFile)
	if err != nil {
		return nil, err
	}

	return &CommitMetadata{
		Author:      author,
		Summary:     pr.Title,
		Description: pr.Body,
		URL:         b.Client.PullRequestURL(id),
		Message:     joinMessage(pr.Title, pr.Body, "This closes: "+id),
	}, nil
}

func joinMessage(parts ...string) string {
	return strings.Join(parts, "\n\n")
}
