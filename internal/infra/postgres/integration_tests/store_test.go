// +build integration

package integration_tests

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
	"github.com/lloydmeta/infodocs/internal/infra/apm/tracing"
	pgInfodoc "github.com/lloydmeta/infodocs/internal/infra/postgres/infodoc"
)

var writtenAt = time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)

func buildStore(t *testing.T) *pgInfodoc.PgStore {
	store := pgInfodoc.NewStore(db, config.PostgresClient{Table: uniqueTable("legacy")})
	require.NoError(t, store.EnsureTable(ctx))
	return store
}

func Test_PgStore_EnsureTable(t *testing.T) {
	store := pgInfodoc.NewStore(db, config.PostgresClient{Table: uniqueTable("ensure")})
	assert.IsType(t, pgInfodoc.TableNotInstalled{}, store.CheckTable(ctx))

	// Reads on a missing table find nothing
	_, err := store.Get(ctx, "a-info")
	assert.IsType(t, infodoc.NotFound{}, err)
	rows, err := store.BatchGet(ctx, []infodoc.Id{"a-info"})
	require.NoError(t, err)
	assert.Nil(t, rows[0].Doc)

	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.EnsureTable(ctx))
	assert.NoError(t, store.CheckTable(ctx))
}

func Test_PgStore_Put_Get(t *testing.T) {
	store := buildStore(t)

	doc := infodoc.Blank("a", writtenAt)
	doc.Transitions = infodoc.Transitions{"t": {LastRev: "1-a", Seq: "3", Ok: true}}
	version, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	assert.Equal(t, metadata.Version{SeqNum: 1, PrimaryTerm: 1}, version)

	_, err = store.Put(ctx, &doc)
	assert.IsType(t, infodoc.InvalidVersion{}, err)

	retrieved, err := store.Get(ctx, "a-info")
	require.NoError(t, err)
	assert.Equal(t, doc.Transitions, retrieved.Transitions)
	assert.Equal(t, version, retrieved.Version)

	retrieved.RecordWrite(writtenAt.Add(time.Hour))
	newVersion, err := store.Put(ctx, retrieved)
	require.NoError(t, err)
	assert.Equal(t, metadata.Version{SeqNum: 2, PrimaryTerm: 1}, newVersion)

	// Stale
	_, err = store.Put(ctx, retrieved)
	assert.IsType(t, infodoc.InvalidVersion{}, err)

	retrieved.Version = newVersion
	retrieved.Deleted = true
	_, err = store.Put(ctx, retrieved)
	require.NoError(t, err)
	_, err = store.Get(ctx, "a-info")
	assert.IsType(t, infodoc.NotFound{}, err)

	_, err = store.Put(ctx, retrieved)
	assert.IsType(t, infodoc.NotFound{}, err)
}

func Test_PgStore_BatchGet_BatchWrite(t *testing.T) {
	store := buildStore(t)

	a := infodoc.Blank("a", writtenAt)
	b := infodoc.Blank("b", time.Time{})
	results, err := store.BatchWrite(ctx, []infodoc.InfoDoc{a, b})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOk())
	assert.True(t, results[1].IsOk())

	rows, err := store.BatchGet(ctx, []infodoc.Id{"c-info", "b-info", "a-info"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Nil(t, rows[0].Doc)
	require.NotNil(t, rows[1].Doc)
	assert.True(t, rows[1].Doc.InitialReplicationDate.IsUnknown())
	require.NotNil(t, rows[2].Doc)
	assert.Equal(t, writtenAt, time.Time(rows[2].Doc.InitialReplicationDate).UTC())

	tombstone := *rows[2].Doc
	tombstone.Deleted = true
	stale := *rows[1].Doc
	stale.Version = metadata.Version{SeqNum: 99, PrimaryTerm: 1}
	results, err = store.BatchWrite(ctx, []infodoc.InfoDoc{tombstone, stale})
	require.NoError(t, err)
	assert.True(t, results[0].IsOk())
	assert.True(t, results[1].IsConflict())
}

// Legacy docs in Postgres get migrated into the canonical store, and retired afterwards
func Test_PgStore_asLegacyStore(t *testing.T) {
	legacy := buildStore(t)
	legacyDoc := infodoc.Blank("a", writtenAt)
	legacyDoc.Transitions = infodoc.Transitions{"t": {LastRev: "1-a", Seq: "3", Ok: true}}
	_, err := legacy.Put(ctx, &legacyDoc)
	require.NoError(t, err)

	canonical := infodoc.NewMemStore()
	engine := infodoc.NewEngine(canonical, legacy, config.InfoDocs{
		VersionConflictRetryTimes: 1,
		RetryMinWait:              time.Millisecond,
		RetryMaxWait:              time.Millisecond,
	}, tracing.NoopTracer{})

	resolved, err := engine.Resolve(ctx, &infodoc.Change{ID: "a", Seq: "4"})
	require.NoError(t, err)
	assert.Equal(t, legacyDoc.Transitions, resolved.Transitions)

	assert.Eventually(t, func() bool {
		_, err := legacy.Get(ctx, "a-info")
		_, gone := err.(infodoc.NotFound)
		return gone
	}, 5*time.Second, 20*time.Millisecond)
}
