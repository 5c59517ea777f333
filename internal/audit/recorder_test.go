package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/custodia-app/custodia/internal/shared"
)

type stubExecer struct {
	calls int
	ctx   context.Context
	args  []any
	err   error
}

func (s *stubExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls++
	s.ctx = ctx
	s.args = args
	return pgconn.CommandTag{}, s.err
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	recorder := NewPGRecorder(nil)

	err := recorder.Record(context.Background(), Entry{Table: "usuarios"})
	require.ErrorIs(t, err, shared.ErrAuditWrite)

	err = recorder.Record(context.Background(), Entry{Action: ActionInsert})
	require.ErrorIs(t, err, shared.ErrAuditWrite)
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	execer := &stubExecer{}
	recorder := NewPGRecorder(execer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	userID := int64(4)
	err := recorder.Record(ctx, Entry{
		Action: ActionDelete,
		Table:  "usuarios",
		UserID: &userID,
		Detail: map[string]any{"id_usuario": 4},
	})

	require.NoError(t, err)
	require.Equal(t, 1, execer.calls, "the insert still runs after cancellation")
	require.NoError(t, execer.ctx.Err(), "the write context carries no cancellation")
}

func TestRecordDefaultsModuleAndRole(t *testing.T) {
	execer := &stubExecer{}
	recorder := NewPGRecorder(execer)

	err := recorder.Record(context.Background(), Entry{Action: ActionInsert, Table: "auditoria"})
	require.NoError(t, err)
	require.Len(t, execer.args, 6)
	require.Equal(t, ModuleSeguridad, execer.args[1])
	require.Equal(t, shared.SystemRoleName, execer.args[5])
}

func TestRecordWrapsStorageFailure(t *testing.T) {
	execer := &stubExecer{err: errors.New("connection reset")}
	recorder := NewPGRecorder(execer)

	err := recorder.Record(context.Background(), Entry{Action: ActionInsert, Table: "usuarios"})
	require.ErrorIs(t, err, shared.ErrAuditWrite)
}
