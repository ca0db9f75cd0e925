// Package chain resolves a review's ancestor dependency chain into the order
// the reviews must be applied in.
package chain

import (
	"context"
	"fmt"

	"github.com/jvanz/mesos/internal/reviewboard"
)

// Entry identifies one review in an application order.
type Entry struct {
	ID      string
	Summary string
}

// MultiParentError reports a review that depends on more than one parent.
// Only linear chains are supported.
type MultiParentError struct {
	ID string
}

func (e *MultiParentError) Error() string {
	return fmt.Sprintf("review %s has more than one parent", e.ID)
}

// CycleError reports a review that transitively depends on itself.
type CycleError struct {
	// ID is the review the resolution started from.
	ID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("found a circular dependency in the chain starting at %s", e.ID)
}

// Fetcher fetches review metadata. *reviewboard.Client satisfies it.
type Fetcher interface {
	FetchReview(ctx context.Context, id string) (*reviewboard.Review, error)
}

// Resolve walks the parent-dependency chain backward from startID and returns
// the application order: oldest ancestor first, the requested review last,
// each ID exactly once. A submitted review terminates the walk without being
// included; it is already integrated, and so is everything older than it.
//
// The walk is iterative rather than recursive so that chain length is bounded
// only by the remote graph, not the stack.
func Resolve(ctx context.Context, fetcher Fetcher, startID string) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]bool)

	for id := startID; ; {
		review, err := fetcher.FetchReview(ctx, id)
		if err != nil {
			return nil, err
		}

		if review.Status == reviewboard.StatusSubmitted {
			break
		}
		if len(review.DependsOn) > 1 {
			return nil, &MultiParentError{ID: id}
		}
		if seen[id] {
			return nil, &CycleError{ID: startID}
		}
		seen[id] = true
		entries = append(entries, Entry{ID: id, Summary: review.Summary})

		if len(review.DependsOn) == 0 {
			break
		}
		parent, err := reviewboard.ExtractReviewID(review.DependsOn[0].Href)
		if err != nil {
			return nil, fmt.Errorf("bad parent reference on review %s: %w", id, err)
		}
		id = parent
	}

	// The walk collects tip-first; the caller applies oldest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
