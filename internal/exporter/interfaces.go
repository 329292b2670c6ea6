package exporter

import (
	"context"
	"net/url"

	"github.com/fabriziosalmi/activitylogs/internal/azure"
)

// Interfaces for dependency injection to allow testing.

// TokenSource issues the bearer token for a run.
type TokenSource interface {
	Acquire(ctx context.Context, resource string) (string, error)
}

// PageFetcher retrieves one page of activity-log records.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL, token string, query url.Values) (*azure.Page, error)
}
