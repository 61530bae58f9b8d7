// Package usage provides the PostgreSQL-backed repository for the
// append-only access audit log. Rows are inserted, never mutated.
package usage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one usage row.
func (r *PostgresRepository) Create(ctx context.Context, record *models.Usage) error {
	var metadata []byte
	if record.Metadata != nil {
		var err error
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("metadata encode error: %w", err)
		}
	}

	query := `
		INSERT INTO usage_events (id, data_id, user_id, access_type, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		record.ID, record.DataID, record.UserID, record.AccessType, metadata).
		Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByData returns the most recent usage rows for one data record.
func (r *PostgresRepository) ListByData(ctx context.Context, dataID string, limit int) ([]*models.Usage, error) {
	query := `
		SELECT id, data_id, user_id, access_type, metadata, created_at
		FROM usage_events
		WHERE data_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, dataID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Usage
	for rows.Next() {
		var (
			item     models.Usage
			metaJSON []byte
		)
		if err := rows.Scan(&item.ID, &item.DataID, &item.UserID, &item.AccessType, &metaJSON, &item.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON != nil {
			if err := json.Unmarshal(metaJSON, &item.Metadata); err != nil {
				return nil, fmt.Errorf("metadata decode error: %w", err)
			}
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
