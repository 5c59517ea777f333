package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-app/custodia/internal/shared"
)

// Repository provides PostgreSQL backed access to auditoria.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEntries returns entries newest first, filtered and windowed.
func (r *Repository) ListEntries(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filters.Action != "" {
		conditions = append(conditions, fmt.Sprintf("accion = $%d", argPos))
		args = append(args, filters.Action)
		argPos++
	}
	if filters.Table != "" {
		conditions = append(conditions, fmt.Sprintf("tabla = $%d", argPos))
		args = append(args, filters.Table)
		argPos++
	}
	if filters.Actor != "" {
		conditions = append(conditions, fmt.Sprintf("nombre_rol = $%d", argPos))
		args = append(args, filters.Actor)
		argPos++
	}
	if !filters.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argPos))
		args = append(args, filters.From)
		argPos++
	}
	if !filters.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argPos))
		args = append(args, filters.To)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	query := fmt.Sprintf(`
		SELECT id, accion, modulo, tabla, id_usuario, details, nombre_rol, timestamp
		FROM auditoria
		%s
		ORDER BY timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEntry fetches one entry by id.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, accion, modulo, tabla, id_usuario, details, nombre_rol, timestamp
		 FROM auditoria WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// DeleteEntry removes an entry by id.
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auditoria WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var userID pgtype.Int8
	var detail []byte
	var at pgtype.Timestamptz
	if err := row.Scan(&entry.ID, &entry.Action, &entry.Module, &entry.Table, &userID, &detail, &entry.RoleName, &at); err != nil {
		return Entry{}, err
	}
	if userID.Valid {
		id := userID.Int64
		entry.UserID = &id
	}
	if len(detail) > 0 {
		// details is server-written jsonb; if it still fails to decode,
		// keep the raw payload instead of returning a nil detail.
		if err := json.Unmarshal(detail, &entry.Detail); err != nil {
			entry.Detail = map[string]any{"raw": string(detail)}
		}
	}
	if at.Valid {
		entry.At = at.Time
	}
	return entry, nil
}
