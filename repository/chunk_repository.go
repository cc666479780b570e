package repository

import (
	"context"
	"errors"
	"fmt"

	"artelex-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrDocumentNotFound is returned when no document exists for an official ID.
var ErrDocumentNotFound = errors.New("legal document not found")

// ChunkRepository persists documents and chunks and executes the vector and
// lexical queries behind hybrid search. It is the single ChunkStore
// implementation; vector-index specifics (HNSW parameters, the Spanish
// tsvector configuration) live in the schema, not in the interface.
type ChunkRepository struct {
	db  *pgxpool.Pool
	dim int
}

// NewChunkRepository creates a new chunk repository. dim is the canonical
// embedding dimension; vectors of any other length are rejected.
func NewChunkRepository(db *pgxpool.Pool, dim int) *ChunkRepository {
	return &ChunkRepository{db: db, dim: dim}
}

// UpsertDocument atomically replaces the document for a source and all its
// chunks. Deleting the prior document cascades to its chunks, so there is
// no window with an orphaned document or a partial chunk set.
func (r *ChunkRepository) UpsertDocument(
	ctx context.Context,
	sourceID int64,
	doc *models.LegalDocument,
	chunks []models.DocumentChunk,
) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != r.dim {
			return fmt.Errorf("chunk %d: embedding must be %d dimensions, got %d",
				i, r.dim, len(chunks[i].Embedding))
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM legal_documents WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete prior document: %w", err)
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.SourceID = sourceID

	err = tx.QueryRow(ctx, `
		INSERT INTO legal_documents (id, source_id, title, official_id, url, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		doc.ID, sourceID, doc.Title, doc.OfficialID, doc.URL, doc.Metadata,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DocumentID = doc.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO document_chunks (
				id, document_id, kind, label, chunk_text, position,
				nature, area, priority, authority_level,
				embedding, metadata
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			c.ID, c.DocumentID, c.Kind, c.Label, c.Text, c.Position,
			c.Metadata.Nature, c.Metadata.Area, c.Metadata.Priority, c.Metadata.AuthorityLevel,
			pgvector.NewVector(c.Embedding), c.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteDocument removes the document for a source; its chunks go with it
// via the cascade. Used when a source transitions to failed, so a failed
// source never keeps stale content in the corpus.
func (r *ChunkRepository) DeleteDocument(ctx context.Context, sourceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM legal_documents WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

const chunkColumns = `c.id, c.document_id, c.kind, c.label, c.chunk_text, c.position, c.metadata`

func scanChunk(row pgx.Rows, extra ...interface{}) (models.DocumentChunk, error) {
	var c models.DocumentChunk
	dest := []interface{}{&c.ID, &c.DocumentID, &c.Kind, &c.Label, &c.Text, &c.Position, &c.Metadata}
	dest = append(dest, extra...)
	err := row.Scan(dest...)
	return c, err
}

// filterSQL renders an AND of equality predicates over the denormalised
// metadata columns. A zero-valued predicate places no constraint.
func filterSQL(filter models.SearchFilter, args []interface{}) (string, []interface{}) {
	clause := ""
	add := func(col, val string) {
		args = append(args, val)
		clause += fmt.Sprintf(" AND c.%s = $%d", col, len(args))
	}
	if filter.Nature != "" {
		add("nature", string(filter.Nature))
	}
	if filter.Area != "" {
		add("area", filter.Area)
	}
	if filter.Priority != "" {
		add("priority", string(filter.Priority))
	}
	if filter.AuthorityLevel != "" {
		add("authority_level", filter.AuthorityLevel)
	}
	return clause, args
}

// VectorSearch returns the k nearest chunks by cosine distance, ascending.
func (r *ChunkRepository) VectorSearch(
	ctx context.Context,
	qvec []float32,
	filter models.SearchFilter,
	k int,
) ([]models.ChunkHit, error) {
	if len(qvec) != r.dim {
		return nil, fmt.Errorf("query embedding must be %d dimensions, got %d", r.dim, len(qvec))
	}

	args := []interface{}{pgvector.NewVector(qvec)}
	clause, args := filterSQL(filter, args)
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT `+chunkColumns+`,
			c.embedding <=> $1 AS distance
		FROM document_chunks c
		WHERE 1=1%s
		ORDER BY c.embedding <=> $1
		LIMIT $%d`, clause, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var hit models.ChunkHit
		c, err := scanChunk(rows, &hit.Distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hit.Chunk = c
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// LexicalSearch returns the k best chunks by Spanish full-text rank,
// descending. The tsv column is generated from label and text at insert
// time; websearch_to_tsquery gives phrase and boolean operator support.
func (r *ChunkRepository) LexicalSearch(
	ctx context.Context,
	qtext string,
	filter models.SearchFilter,
	k int,
) ([]models.ChunkHit, error) {
	args := []interface{}{qtext}
	clause, args := filterSQL(filter, args)
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT `+chunkColumns+`,
			ts_rank_cd(c.tsv, websearch_to_tsquery('spanish', $1)) AS rank
		FROM document_chunks c
		WHERE c.tsv @@ websearch_to_tsquery('spanish', $1)%s
		ORDER BY rank DESC
		LIMIT $%d`, clause, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var hit models.ChunkHit
		c, err := scanChunk(rows, &hit.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		hit.Chunk = c
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// GetDocument retrieves a document and its chunks, ordered by structural
// position.
func (r *ChunkRepository) GetDocument(ctx context.Context, officialID string) (*models.LegalDocument, []models.DocumentChunk, error) {
	doc := &models.LegalDocument{}
	err := r.db.QueryRow(ctx, `
		SELECT id, source_id, title, official_id, url, metadata, created_at
		FROM legal_documents
		WHERE official_id = $1`, officialID,
	).Scan(&doc.ID, &doc.SourceID, &doc.Title, &doc.OfficialID, &doc.URL, &doc.Metadata, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrDocumentNotFound
		}
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM document_chunks c
		WHERE c.document_id = $1
		ORDER BY c.position`, doc.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return doc, chunks, rows.Err()
}

// CountChunks returns the number of chunks stored for a document.
func (r *ChunkRepository) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}
