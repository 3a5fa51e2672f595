package capture

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"pdc/backend/internal/worker"
)

// ErrDuplicateHash is the distinguishable conflict outcome of
// CreateWithEmbedding: another transaction committed the same content hash
// first. The orchestrator recovers it with a fresh lookup.
var ErrDuplicateHash = errors.New("content hash already exists")

const pqUniqueViolation = "23505"

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// GetByHash returns the item for a content hash, or nil when absent.
func (r *PostgresRepo) GetByHash(ctx context.Context, hash string) (*ContentItem, error) {
	query := `SELECT id, content, content_hash, source, metadata, created_at, captured_at FROM content_items WHERE content_hash = $1`
	item, err := scanItem(r.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// CreateWithEmbedding persists the item and its embedding in a single
// transaction: both rows become durable together or neither does. A unique
// violation on either insert maps to ErrDuplicateHash.
func (r *PostgresRepo) CreateWithEmbedding(ctx context.Context, item *ContentItem, vector []float32, modelVersion string) error {
	meta := item.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	itemQuery := `INSERT INTO content_items (content, content_hash, source, metadata, captured_at) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, itemQuery, item.Content, item.ContentHash, item.Source, metaJSON, item.CapturedAt).
		Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return mapConflict(err)
	}

	embQuery := `INSERT INTO embeddings (content_item_id, embedding_vector, model_version) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, embQuery, item.ID, pgvector.NewVector(vector), modelVersion); err != nil {
		_ = tx.Rollback()
		return mapConflict(err)
	}

	if err := tx.Commit(); err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*ContentItem, error) {
	query := `SELECT id, content, content_hash, source, metadata, created_at, captured_at FROM content_items WHERE id = $1`
	return scanItem(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) GetEmbedding(ctx context.Context, contentItemID string) (*Embedding, error) {
	e := &Embedding{}
	var vec pgvector.Vector
	query := `SELECT id, content_item_id, embedding_vector, model_version, created_at FROM embeddings WHERE content_item_id = $1`
	err := r.db.QueryRowContext(ctx, query, contentItemID).
		Scan(&e.ID, &e.ContentItemID, &vec, &e.ModelVersion, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Vector = vec.Slice()
	return e, nil
}

// GetForIndex loads the fields the search-index mirror needs, shaped for
// the worker package.
func (r *PostgresRepo) GetForIndex(ctx context.Context, contentItemID string) (worker.IndexedItem, error) {
	item, err := r.Get(ctx, contentItemID)
	if err != nil {
		return worker.IndexedItem{}, err
	}
	embedding, err := r.GetEmbedding(ctx, contentItemID)
	if err != nil {
		return worker.IndexedItem{}, err
	}
	return worker.IndexedItem{
		ContentItemID: item.ID,
		ContentHash:   item.ContentHash,
		Source:        item.Source,
		Content:       item.Content,
		ModelVersion:  embedding.ModelVersion,
		Vector:        embedding.Vector,
	}, nil
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]ContentItem, error) {
	query := `SELECT id, content, content_hash, source, metadata, created_at, captured_at FROM content_items ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*ContentItem, error) {
	item := &ContentItem{}
	var metaJSON []byte
	var capturedAt sql.NullTime
	err := row.Scan(&item.ID, &item.Content, &item.ContentHash, &item.Source, &metaJSON, &item.CreatedAt, &capturedAt)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &item.Metadata); err != nil {
			return nil, err
		}
	}
	if item.Metadata == nil {
		item.Metadata = map[string]any{}
	}
	if capturedAt.Valid {
		t := capturedAt.Time
		item.CapturedAt = &t
	}
	return item, nil
}

func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateHash
	}
	return err
}
