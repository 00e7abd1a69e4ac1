package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides access to the error_records table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertErrorRecord stores a record and returns its generated id.
func (r *Repository) InsertErrorRecord(ctx context.Context, params InsertErrorRecordParams) (string, error) {
	slog.Debug(fmt.Sprintf("%s - InsertErrorRecord fqn=%s", repoLogPrefix, params.FQN))

	record := params.Record
	if len(record) == 0 {
		record = []byte("{}")
	}

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO error_records (fqn, message, peer_id, record)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		params.FQN, params.Message, params.PeerID, record).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%s - InsertErrorRecord failed: %w", repoLogPrefix, err)
	}
	return id, nil
}

// GetErrorRecord finds a record by id. It returns nil when none exists.
func (r *Repository) GetErrorRecord(ctx context.Context, id string) (*ErrorRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id::text, fqn, message, peer_id, record, created
		 FROM error_records
		 WHERE id = $1::uuid
		 LIMIT 1`, id)
	return scanErrorRecord(row)
}

// ListErrorRecords lists records newest first with an optional identity filter.
func (r *Repository) ListErrorRecords(ctx context.Context, params ListErrorRecordsParams) ([]ErrorRecord, int, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := `SELECT id::text, fqn, message, peer_id, record, created
	          FROM error_records WHERE 1=1`
	countQuery := `SELECT COUNT(*)::int FROM error_records WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if params.FQN != "" {
		clause := fmt.Sprintf(` AND fqn = $%d`, argIdx)
		query += clause
		countQuery += clause
		args = append(args, params.FQN)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s - ListErrorRecords count failed: %w", repoLogPrefix, err)
	}

	query += ` ORDER BY created DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s - ListErrorRecords query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		rec, err := scanErrorRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s - ListErrorRecords rows failed: %w", repoLogPrefix, err)
	}
	return records, total, nil
}

func scanErrorRecord(row pgx.Row) (*ErrorRecord, error) {
	var e ErrorRecord
	err := row.Scan(&e.ID, &e.FQN, &e.Message, &e.PeerID, &e.Record, &e.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan error record failed: %w", repoLogPrefix, err)
	}
	return &e, nil
}
