// Package fetcher retrieves policy documents over HTTP.
package fetcher

import "context"

// Fetcher retrieves documents by URL.
type Fetcher interface {
	// Fetch downloads the URL and returns the body and Content-Type.
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}
