package scraper

import (
	"context"

	"waybackscraper/pkg/wayback"
)

// Archive defines the archive operations the scraper needs
type Archive interface {
	Snapshots(ctx context.Context, account string) ([]wayback.Snapshot, error)
	FetchSnapshot(ctx context.Context, s wayback.Snapshot) (*wayback.Page, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
	WebURL() string
}

// observable archives report each request to a metrics sink
type observable interface {
	SetObserver(o wayback.RequestObserver)
}
