package memstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDef = core.TableDefinition{
	Info: core.TableInfo{Key: "widgets"},
	FieldSpecs: []core.FieldSpec{
		{Name: "Name", Type: core.FieldText, Required: true, MaxLength: 5},
	},
}

func rec(name string) core.Record {
	return core.Record{pgtype.Text{String: name, Valid: true}}
}

func TestTx_CommitPublishesRows(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Persist(ctx, testDef, []core.Record{rec("a"), rec("b")}))
	assert.Equal(t, 0, s.Count("widgets"), "staged rows must not be visible")

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 2, s.Count("widgets"))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit")
	assert.Equal(t, 2, s.Count("widgets"))
}

func TestTx_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Persist(ctx, testDef, []core.Record{rec("a")}))
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, 0, s.Count("widgets"))
	assert.Error(t, tx.Commit(ctx))
}

func TestTx_PersistValidates(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.Persist(ctx, testDef, []core.Record{rec("ok"), {pgtype.Text{}}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Name"), err.Error())
}

func TestStore_Clear(t *testing.T) {
	s := New()
	s.Seed("widgets", []core.Record{rec("a")})
	require.NoError(t, s.Clear(context.Background(), testDef))
	assert.Equal(t, 0, s.Count("widgets"))
}

func TestHistory_ListRuns(t *testing.T) {
	ctx := context.Background()
	h := NewHistory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.RecordRun(ctx, core.RunRecord{RunID: "1", TableKey: "a", StartedAt: base}))
	require.NoError(t, h.RecordRun(ctx, core.RunRecord{RunID: "2", TableKey: "b", StartedAt: base.Add(time.Minute)}))
	require.NoError(t, h.RecordRun(ctx, core.RunRecord{RunID: "3", TableKey: "a", StartedAt: base.Add(2 * time.Minute)}))

	all, err := h.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].RunID)

	onlyA, err := h.ListRuns(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "3", onlyA[0].RunID)
}
