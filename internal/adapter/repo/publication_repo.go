package repo

import (
	"context"
	"fmt"
	"time"

	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/sqlinline"
)

// PublicationRepositoryPG implements domain.PublicationRepository.
type PublicationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewPublicationRepository creates a publication log backed by PostgreSQL.
func NewPublicationRepository(sql infra.SQLExecutor) *PublicationRepositoryPG {
	return &PublicationRepositoryPG{sql: sql}
}

// Record upserts the publication keyed by job id.
func (r *PublicationRepositoryPG) Record(ctx context.Context, p domain.Publication) error {
	if p.JobID == "" || p.RemoteID == "" {
		return fmt.Errorf("publication requires job id and remote id")
	}
	publishedAt := p.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertPublication, p.JobID, p.RemoteID, p.Title, publishedAt)
	return err
}

// ListRecent returns the newest publications first.
func (r *PublicationRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Publication, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentPublications, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Publication
	for rows.Next() {
		var p domain.Publication
		if err := rows.Scan(&p.JobID, &p.RemoteID, &p.Title, &p.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ domain.PublicationRepository = (*PublicationRepositoryPG)(nil)
