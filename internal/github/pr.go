// Package github provides GitHub pull request metadata and patch URLs.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PullRequest holds the metadata the tool needs from a pull request.
// GitHub has no separate user-profile endpoint for the commit author; the
// author is recovered from the downloaded patch instead (see internal/apply).
type PullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Client talks to the GitHub REST API and patch host for one repository.
type Client struct {
	// APIBaseURL is the REST API root, without a trailing slash.
	APIBaseURL string
	// PatchBaseURL is the raw patch host root, without a trailing slash.
	PatchBaseURL string
	// Repo is the owner/name slug.
	Repo string
	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewClient creates a client for the given repository slug.
func NewClient(apiBaseURL, patchBaseURL, repo string) *Client {
	return &Client{
		APIBaseURL:   apiBaseURL,
		PatchBaseURL: patchBaseURL,
		Repo:         repo,
		HTTPClient:   http.DefaultClient,
	}
}

// PullRequestURL returns the API URL for a pull request, as embedded in
// generated commit messages.
func (c *Client) PullRequestURL(number string) string {
	return fmt.Sprintf("%s/repos/%s/pulls/%s", c.APIBaseURL, c.Repo, number)
}

// PatchURL returns the raw patch download URL for a pull request.
func (c *Client) PatchURL(number string) string {
	return fmt.Sprintf("%s/raw/%s/pull/%s.patch", c.PatchBaseURL, c.Repo, number)
}

// FetchPullRequest fetches title and body for a pull request number.
func (c *Client) FetchPullRequest(ctx context.Context, number string) (*PullRequest, error) {
	url := c.PullRequestURL(number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request %s: %w", number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("failed to fetch pull request %s: unexpected status %s", number, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request %s: %w", number, err)
	}
	return parsePullRequestJSON(number, data)
}

// parsePullRequestJSON parses the JSON response for a pull request.
func parsePullRequestJSON(number string, data []byte) (*PullRequest, error) {
	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pull request %s response: %w", number, err)
	}
	return &pr, nil
}
