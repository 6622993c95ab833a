package domain

import (
	"context"
	"time"
)

// Publication is the durable record of a completed upload.
type Publication struct {
	JobID       string
	RemoteID    string
	Title       string
	PublishedAt time.Time
}

// PublicationRepository appends completed uploads to the publication log.
type PublicationRepository interface {
	Record(ctx context.Context, p Publication) error
	ListRecent(ctx context.Context, limit int) ([]Publication, error)
}
