package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"artelex-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSourceNotFound is returned when a catalog entry does not exist.
var ErrSourceNotFound = errors.New("corpus source not found")

// SourceRepository handles database operations for the corpus catalog and
// drives the per-source ingestion state machine.
type SourceRepository struct {
	db *pgxpool.Pool
}

// NewSourceRepository creates a new corpus source repository.
func NewSourceRepository(db *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `id, official_id, title, source_url, document_kind,
	priority, nature, area, scope, authority_level, state,
	last_ingested_at, last_error, created_at, updated_at`

func scanSource(row pgx.Row) (*models.CorpusSource, error) {
	s := &models.CorpusSource{}
	err := row.Scan(
		&s.ID, &s.OfficialID, &s.Title, &s.SourceURL, &s.DocumentKind,
		&s.Priority, &s.Nature, &s.Area, &s.Scope, &s.AuthorityLevel, &s.State,
		&s.LastIngestedAt, &s.LastError, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert inserts or updates a catalog entry keyed by official_id. Lifecycle
// fields are not touched on update; only the classification and provenance
// columns follow the catalog file.
func (r *SourceRepository) Upsert(ctx context.Context, s *models.CorpusSource) error {
	query := `
		INSERT INTO corpus_sources (
			official_id, title, source_url, document_kind,
			priority, nature, area, scope, authority_level, state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
		ON CONFLICT (official_id) DO UPDATE SET
			title = EXCLUDED.title,
			source_url = EXCLUDED.source_url,
			document_kind = EXCLUDED.document_kind,
			priority = EXCLUDED.priority,
			nature = EXCLUDED.nature,
			area = EXCLUDED.area,
			scope = EXCLUDED.scope,
			authority_level = EXCLUDED.authority_level,
			updated_at = NOW()
		RETURNING id, state, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		s.OfficialID, s.Title, s.SourceURL, s.DocumentKind,
		s.Priority, s.Nature, s.Area, s.Scope, s.AuthorityLevel,
	).Scan(&s.ID, &s.State, &s.CreatedAt, &s.UpdatedAt)
}

// GetByOfficialID retrieves a catalog entry by its official identifier.
func (r *SourceRepository) GetByOfficialID(ctx context.Context, officialID string) (*models.CorpusSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM corpus_sources WHERE official_id = $1`
	return scanSource(r.db.QueryRow(ctx, query, officialID))
}

// List returns catalog entries matching the filter, paged.
func (r *SourceRepository) List(ctx context.Context, filter models.SourceFilter, limit, offset int) ([]models.CorpusSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM corpus_sources WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(col, val string) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", col, n)
		args = append(args, val)
	}
	if filter.Priority != "" {
		add("priority", string(filter.Priority))
	}
	if filter.Nature != "" {
		add("nature", string(filter.Nature))
	}
	if filter.Area != "" {
		add("area", filter.Area)
	}
	if filter.State != "" {
		add("state", string(filter.State))
	}
	query += fmt.Sprintf(" ORDER BY priority, official_id LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.CorpusSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// ListPending returns official IDs of pending sources at the given priority.
func (r *SourceRepository) ListPending(ctx context.Context, priority models.Priority) ([]string, error) {
	query := `
		SELECT official_id FROM corpus_sources
		WHERE state = 'pending' AND priority = $1
		ORDER BY official_id`

	rows, err := r.db.Query(ctx, query, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Claim transitions a source into the ingesting state. The state acts as a
// lock: the conditional UPDATE guarantees at most one worker claims a
// source. Returns false if the source was not claimable.
func (r *SourceRepository) Claim(ctx context.Context, officialID string) (bool, error) {
	query := `
		UPDATE corpus_sources SET
			state = 'ingesting',
			updated_at = NOW()
		WHERE official_id = $1 AND state IN ('pending', 'failed', 'ingested')`

	tag, err := r.db.Exec(ctx, query, officialID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns a claimed source to pending without recording a result.
// Used on cancellation and on recoverable failures with attempts remaining.
func (r *SourceRepository) Release(ctx context.Context, officialID string) error {
	query := `
		UPDATE corpus_sources SET
			state = 'pending',
			updated_at = NOW()
		WHERE official_id = $1 AND state = 'ingesting'`

	_, err := r.db.Exec(ctx, query, officialID)
	return err
}

// MarkIngested records a successful ingestion. The transition requires the
// caller to still hold the claim: a stalled worker whose claim was
// reclaimed must not stomp another worker's in-flight ingestion.
func (r *SourceRepository) MarkIngested(ctx context.Context, officialID string) error {
	query := `
		UPDATE corpus_sources SET
			state = 'ingested',
			last_ingested_at = NOW(),
			last_error = NULL,
			updated_at = NOW()
		WHERE official_id = $1 AND state = 'ingesting'`

	_, err := r.db.Exec(ctx, query, officialID)
	return err
}

// MarkFailed records a terminal failure with a human-readable cause. Like
// MarkIngested, it only applies while the caller's claim is held.
func (r *SourceRepository) MarkFailed(ctx context.Context, officialID, cause string) error {
	query := `
		UPDATE corpus_sources SET
			state = 'failed',
			last_error = $2,
			updated_at = NOW()
		WHERE official_id = $1 AND state = 'ingesting'`

	_, err := r.db.Exec(ctx, query, officialID, cause)
	return err
}

// ReclaimStale returns ingesting sources whose claim is older than the
// heartbeat to pending. A worker that died mid-ingestion leaves its source
// in ingesting forever otherwise.
func (r *SourceRepository) ReclaimStale(ctx context.Context, heartbeat time.Duration) (int64, error) {
	query := `
		UPDATE corpus_sources SET
			state = 'pending',
			updated_at = NOW()
		WHERE state = 'ingesting' AND updated_at < NOW() - $1::interval`

	tag, err := r.db.Exec(ctx, query, heartbeat.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
