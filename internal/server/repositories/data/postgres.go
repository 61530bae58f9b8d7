// Package data provides the PostgreSQL-backed repository for data records:
// metadata rows describing immutable ledger payloads.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dsemenov/datavault/internal/common"
	"github.com/dsemenov/datavault/internal/dbx"
	"github.com/dsemenov/datavault/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

// Create inserts a new data record. A duplicate ledger identifier yields
// common.ErrConstraintViolation: the metadata index enforces at-most-one row
// per ledger id so ledger-write retries cannot duplicate records.
func (r *PostgresRepository) Create(ctx context.Context, record *models.Data) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("metadata encode error: %w", err)
	}
	allowed, err := json.Marshal(record.AllowedUsers)
	if err != nil {
		return fmt.Errorf("allowed users encode error: %w", err)
	}

	query := `
		INSERT INTO data (id, creator, type, permission_level, allowed_users, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		record.ID, record.Creator, record.Type, record.PermissionLevel, allowed, metadata).
		Scan(&record.Seq, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: data id %s", common.ErrConstraintViolation, record.ID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID fetches one record or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Data, error) {
	return r.get(ctx, id, false)
}

// GetByIDForUpdate fetches one record with a row lock held until the
// surrounding transaction ends.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Data, error) {
	return r.get(ctx, id, true)
}

func (r *PostgresRepository) get(ctx context.Context, id string, forUpdate bool) (*models.Data, error) {
	query := `
		SELECT id, seq, creator, type, permission_level, allowed_users, metadata, created_at, updated_at
		FROM data
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		record      models.Data
		allowedJSON []byte
		metaJSON    []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.Seq, &record.Creator, &record.Type, &record.PermissionLevel,
		&allowedJSON, &metaJSON, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(allowedJSON, &record.AllowedUsers); err != nil {
		return nil, fmt.Errorf("allowed users decode error: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &record.Metadata); err != nil {
		return nil, fmt.Errorf("metadata decode error: %w", err)
	}
	return &record, nil
}

// UpdatePermissions rewrites the access-control columns of one record.
// Returns common.ErrNotFound when no row matches.
func (r *PostgresRepository) UpdatePermissions(ctx context.Context, id string, level models.PermissionLevel, allowedUsers []string) error {
	allowed, err := json.Marshal(allowedUsers)
	if err != nil {
		return fmt.Errorf("allowed users encode error: %w", err)
	}

	query := `
		UPDATE data
		SET permission_level = $2, allowed_users = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, level, allowed)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Query lists records in insertion order (seq ascending), starting after
// filter.AfterSeq, at most filter.Limit rows. Insertion order is stable, so
// chained pages see each record exactly once under concurrent inserts.
func (r *PostgresRepository) Query(ctx context.Context, filter QueryFilter) ([]*models.Data, error) {
	query := `
		SELECT id, seq, creator, type, permission_level, allowed_users, metadata, created_at, updated_at
		FROM data
		WHERE seq > $1
	`
	args := []any{filter.AfterSeq}
	query, args = appendFilter(query, args, filter)
	query += fmt.Sprintf(" ORDER BY seq LIMIT $%d", len(args)+1)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Data
	for rows.Next() {
		var (
			record      models.Data
			allowedJSON []byte
			metaJSON    []byte
		)
		if err := rows.Scan(
			&record.ID, &record.Seq, &record.Creator, &record.Type, &record.PermissionLevel,
			&allowedJSON, &metaJSON, &record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(allowedJSON, &record.AllowedUsers); err != nil {
			return nil, fmt.Errorf("allowed users decode error: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("metadata decode error: %w", err)
		}
		result = append(result, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns the number of records matching the type/creator filter,
// ignoring pagination fields.
func (r *PostgresRepository) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM data WHERE TRUE`
	args := []any{}
	query, args = appendFilter(query, args, filter)

	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func appendFilter(query string, args []any, filter QueryFilter) (string, []any) {
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Creator != nil {
		args = append(args, *filter.Creator)
		query += fmt.Sprintf(" AND creator = $%d", len(args))
	}
	if filter.Viewer != nil {
		args = append(args, *filter.Viewer)
		n := len(args)
		query += fmt.Sprintf(" AND (permission_level = 'PUBLIC' OR creator = $%d OR (permission_level = 'SHARED' AND allowed_users ? $%d))", n, n)
	}
	return query, args
}
