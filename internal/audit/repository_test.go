package audit

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	detail []byte
}

func (f fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = 7
	*(dest[1].(*string)) = ActionInsert
	*(dest[2].(*string)) = ModuleSeguridad
	*(dest[3].(*string)) = "usuarios"
	*(dest[4].(*pgtype.Int8)) = pgtype.Int8{Int64: 4, Valid: true}
	*(dest[5].(*[]byte)) = f.detail
	*(dest[6].(*string)) = "Admin"
	*(dest[7].(*pgtype.Timestamptz)) = pgtype.Timestamptz{Time: time.Unix(1700000000, 0), Valid: true}
	return nil
}

func TestScanEntryDecodesDetail(t *testing.T) {
	entry, err := scanEntry(fakeRow{detail: []byte(`{"usuario":"jdoe"}`)})
	require.NoError(t, err)
	require.Equal(t, int64(7), entry.ID)
	require.NotNil(t, entry.UserID)
	require.Equal(t, int64(4), *entry.UserID)
	require.Equal(t, "jdoe", entry.Detail["usuario"])
}

func TestScanEntryKeepsUndecodableDetail(t *testing.T) {
	entry, err := scanEntry(fakeRow{detail: []byte(`{"usuario":`)})
	require.NoError(t, err)
	require.Equal(t, `{"usuario":`, entry.Detail["raw"])
}
