package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/custodia-app/custodia/internal/shared"
)

// Recorder appends audit entries. Implementations must either fully persist
// the entry or return an error wrapping shared.ErrAuditWrite so callers can
// tell an audit failure apart from a business failure.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Execer is the slice of pgxpool.Pool the recorder writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRecorder writes audit entries into the auditoria table.
type PGRecorder struct {
	db Execer
}

// NewPGRecorder returns a Postgres-backed recorder.
func NewPGRecorder(db Execer) *PGRecorder {
	return &PGRecorder{db: db}
}

// Record persists the entry. The timestamp is assigned by the database at
// write time, never by the caller. The write runs on a context detached from
// the caller's cancellation: once a business operation has executed, its
// side effects must not go unaudited because the request went away.
func (r *PGRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.Table == "" {
		return fmt.Errorf("%w: entry requires action and table", shared.ErrAuditWrite)
	}
	if entry.Module == "" {
		entry.Module = ModuleSeguridad
	}
	if entry.RoleName == "" {
		entry.RoleName = shared.SystemRoleName
	}

	var detail []byte
	if entry.Detail != nil {
		data, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("%w: marshal detail: %v", shared.ErrAuditWrite, err)
		}
		detail = data
	}

	ctx = context.WithoutCancel(ctx)
	_, err := r.db.Exec(ctx,
		`INSERT INTO auditoria (accion, modulo, tabla, id_usuario, details, nombre_rol, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		entry.Action, entry.Module, entry.Table, entry.UserID, detail, entry.RoleName)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuditWrite, err)
	}
	return nil
}
