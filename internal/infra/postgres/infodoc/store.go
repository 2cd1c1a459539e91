package infodoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
	"github.com/lloydmeta/infodocs/internal/infra/persisted"
	"github.com/lloydmeta/infodocs/internal/infra/postgres"
)

const DefaultTable = "infodocs_legacy"

// Postgres rows only have a single counter, so every version shares one primary term
const primaryTerm metadata.PrimaryTerm = 1

// PgStore keeps info docs as JSONB in a single table, using a per-row revision counter for
// optimistic locking.
type PgStore struct {
	db           *sql.DB
	table        string
	queryTimeout time.Duration
}

func NewStore(db *sql.DB, conf config.PostgresClient) *PgStore {
	table := strings.TrimSpace(conf.Table)
	if table == "" {
		table = DefaultTable
	}
	return &PgStore{
		db:           db,
		table:        table,
		queryTimeout: postgres.QueryTimeout(conf),
	}
}

// EnsureTable creates the table if it doesn't exist yet
func (p *PgStore) EnsureTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			rev BIGINT NOT NULL,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.quotedTable())
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return postgres.PostgresErr{Underlying: err}
	}
	log.Info().Str("table", p.table).Msg("Ensured legacy info doc table")
	return nil
}

// CheckTable returns an error if the table isn't there
func (p *PgStore) CheckTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	var found sql.NullString
	if err := p.db.QueryRowContext(ctx, "SELECT to_regclass($1)", p.table).Scan(&found); err != nil {
		return postgres.PostgresErr{Underlying: err}
	}
	if !found.Valid {
		return TableNotInstalled{Table: p.table}
	}
	return nil
}

func (p *PgStore) Get(ctx context.Context, id infodoc.Id) (*infodoc.InfoDoc, error) {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	query := fmt.Sprintf("SELECT rev, doc FROM %s WHERE id = $1", p.quotedTable())
	var rev int64
	var raw []byte
	err := p.db.QueryRowContext(ctx, query, string(id)).Scan(&rev, &raw)
	switch {
	case err == sql.ErrNoRows || postgres.IsUndefinedTable(err):
		return nil, infodoc.NotFound{ID: id}
	case err != nil:
		return nil, postgres.PostgresErr{Underlying: err}
	}
	return toDomain(id, rev, raw)
}

func (p *PgStore) Put(ctx context.Context, doc *infodoc.InfoDoc) (metadata.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	return p.write(ctx, doc)
}

func (p *PgStore) BatchGet(ctx context.Context, ids []infodoc.Id) ([]infodoc.Row, error) {
	rows := make([]infodoc.Row, 0, len(ids))
	if len(ids) == 0 {
		return rows, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	asStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		asStrings = append(asStrings, string(id))
	}
	query := fmt.Sprintf("SELECT id, rev, doc FROM %s WHERE id = ANY($1)", p.quotedTable())
	found := make(map[infodoc.Id]*infodoc.InfoDoc, len(ids))
	sqlRows, err := p.db.QueryContext(ctx, query, pq.Array(asStrings))
	switch {
	case postgres.IsUndefinedTable(err):
	case err != nil:
		return nil, postgres.PostgresErr{Underlying: err}
	default:
		defer sqlRows.Close()
		for sqlRows.Next() {
			var id string
			var rev int64
			var raw []byte
			if err := sqlRows.Scan(&id, &rev, &raw); err != nil {
				return nil, postgres.PostgresErr{Underlying: err}
			}
			doc, err := toDomain(infodoc.Id(id), rev, raw)
			if err != nil {
				return nil, err
			}
			found[doc.ID] = doc
		}
		if err := sqlRows.Err(); err != nil {
			return nil, postgres.PostgresErr{Underlying: err}
		}
	}

	for _, id := range ids {
		rows = append(rows, infodoc.Row{ID: id, Doc: found[id]})
	}
	return rows, nil
}

// BatchWrite runs each write on its own, so that one failing item doesn't take the others
// down with it.
func (p *PgStore) BatchWrite(ctx context.Context, docs []infodoc.InfoDoc) ([]infodoc.WriteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()
	results := make([]infodoc.WriteResult, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			return nil, postgres.PostgresErr{Underlying: err}
		}
		version, err := p.write(ctx, doc)
		results = append(results, infodoc.WriteResult{ID: doc.ID, Version: version, Err: err})
	}
	return results, nil
}

func (p *PgStore) write(ctx context.Context, doc *infodoc.InfoDoc) (metadata.Version, error) {
	if doc.Deleted {
		return p.delete(ctx, doc)
	}
	asBytes, err := json.Marshal(persisted.FromDomain(doc))
	if err != nil {
		return metadata.Version{}, postgres.PostgresErr{Underlying: err}
	}

	var query string
	var args []interface{}
	if doc.Version.IsZero() {
		// Nothing comes back if it already exists
		query = fmt.Sprintf(`
			INSERT INTO %s (id, rev, doc, updated_at)
			VALUES ($1, 1, $2, NOW())
			ON CONFLICT (id) DO NOTHING
			RETURNING rev`, p.quotedTable())
		args = []interface{}{string(doc.ID), string(asBytes)}
	} else {
		query = fmt.Sprintf(`
			UPDATE %s SET doc = $2, rev = rev + 1, updated_at = NOW()
			WHERE id = $1 AND rev = $3
			RETURNING rev`, p.quotedTable())
		args = []interface{}{string(doc.ID), string(asBytes), int64(doc.Version.SeqNum)}
	}

	var rev int64
	err = p.db.QueryRowContext(ctx, query, args...).Scan(&rev)
	switch {
	case err == sql.ErrNoRows:
		return metadata.Version{}, infodoc.InvalidVersion{ID: doc.ID}
	case err != nil:
		return metadata.Version{}, postgres.PostgresErr{Underlying: err}
	}
	return versionOf(rev), nil
}

func (p *PgStore) delete(ctx context.Context, doc *infodoc.InfoDoc) (metadata.Version, error) {
	var query string
	var args []interface{}
	if doc.Version.IsZero() {
		query = fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING rev", p.quotedTable())
		args = []interface{}{string(doc.ID)}
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND rev = $2 RETURNING rev", p.quotedTable())
		args = []interface{}{string(doc.ID), int64(doc.Version.SeqNum)}
	}
	var rev int64
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&rev)
	switch {
	case err == sql.ErrNoRows || postgres.IsUndefinedTable(err):
		return metadata.Version{}, p.missingOrConflicting(ctx, doc.ID)
	case err != nil:
		return metadata.Version{}, postgres.PostgresErr{Underlying: err}
	}
	return versionOf(rev + 1), nil
}

// missingOrConflicting tells apart the two reasons a conditional write can touch no rows
func (p *PgStore) missingOrConflicting(ctx context.Context, id infodoc.Id) error {
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return infodoc.InvalidVersion{ID: id}
}

func (p *PgStore) quotedTable() string {
	return pq.QuoteIdentifier(p.table)
}

func versionOf(rev int64) metadata.Version {
	return metadata.Version{SeqNum: metadata.SeqNum(rev), PrimaryTerm: primaryTerm}
}

func toDomain(id infodoc.Id, rev int64, raw []byte) (*infodoc.InfoDoc, error) {
	var p persisted.InfoDoc
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, infodoc.InvalidPersistedData{ID: id, PersistedData: string(raw)}
	}
	return p.ToDomain(id, versionOf(rev))
}

type TableNotInstalled struct {
	Table string
}

func (e TableNotInstalled) Error() string {
	return fmt.Sprintf("The legacy info doc table [%s] does not exist. Please run the setup command to create it", e.Table)
}
