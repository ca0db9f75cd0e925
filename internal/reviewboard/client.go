// Package reviewboard provides a client for the Review Board REST API,
// covering the review-request, user and raw-diff endpoints the tool consumes.
package reviewboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

// Review statuses reported by the API.
const (
	StatusSubmitted = "submitted"
	StatusPending   = "pending"
)

// Link is a hyperlink reference in an API response.
type Link struct {
	Href  string `json:"href"`
	Title string `json:"title"`
}

// Review is a Review Board review request.
type Review struct {
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	DependsOn   []Link `json:"depends_on"`
	Links       struct {
		Submitter Link `json:"submitter"`
	} `json:"links"`
}

// User is a Review Board user profile.
type User struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
}

// Client talks to a Review Board instance.
type Client struct {
	// BaseURL is the instance root, without a trailing slash.
	BaseURL string
	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewClient creates a client for the Review Board instance at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: http.DefaultClient}
}

// ReviewAPIURL returns the API URL for a review request.
// The Review Board REST API expects a trailing slash.
func (c *Client) ReviewAPIURL(id string) string {
	return fmt.Sprintf("%s/api/review-requests/%s/", c.BaseURL, id)
}

// ReviewURL returns the human-facing URL for a review, as embedded in
// generated commit messages.
func (c *Client) ReviewURL(id string) string {
	return fmt.Sprintf("%s/r/%s/", c.BaseURL, id)
}

// UserAPIURL returns the API URL for a user profile.
func (c *Client) UserAPIURL(username string) string {
	return fmt.Sprintf("%s/api/users/%s/", c.BaseURL, username)
}

// PatchURL returns the raw diff download URL for a review.
func (c *Client) PatchURL(id string) string {
	return fmt.Sprintf("%s/r/%s/diff/raw/", c.BaseURL, id)
}

// FetchReview fetches the review request with the given ID.
func (c *Client) FetchReview(ctx context.Context, id string) (*Review, error) {
	var resp struct {
		ReviewRequest Review `json:"review_request"`
	}
	if err := c.getJSON(ctx, c.ReviewAPIURL(id), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch review %s: %w", id, err)
	}
	return &resp.ReviewRequest, nil
}

// FetchUser fetches the user profile for the given username.
func (c *Client) FetchUser(ctx context.Context, username string) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.getJSON(ctx, c.UserAPIURL(username), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", username, err)
	}
	return &resp.User, nil
}

// getJSON performs a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

// reviewIDPattern matches the numeric ID in a review-request API href.
var reviewIDPattern = regexp.MustCompile(`/api/review-requests/(\d+)/`)

// ExtractReviewID extracts the review ID from a review-request API href,
// such as the entries of a review's depends_on list.
func ExtractReviewID(href string) (string, error) {
	m := reviewIDPattern.FindStringSubmatch(href)
	if m == nil {
		return "", fmt.Errorf("no review ID found in %q", href)
	}
	return m[1], nil
}
