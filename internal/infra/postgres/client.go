// postgres holds what's common to Postgres-backed stores
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lloydmeta/infodocs/internal/config"
)

const DefaultQueryTimeout = 5 * time.Second

// Error codes we care about, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const UndefinedTableCode pq.ErrorCode = "42P01"

type PostgresErr struct {
	Underlying error
}

func (e PostgresErr) Error() string {
	return fmt.Sprintf("Error from Postgres: %v", e.Underlying)
}

func (e PostgresErr) Unwrap() error {
	return e.Underlying
}

// IsUndefinedTable returns true if the error says the table being queried doesn't exist
func IsUndefinedTable(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == UndefinedTableCode
}

// NewDB opens a connection pool based on the given conf and makes sure it's usable
func NewDB(ctx context.Context, conf config.PostgresClient) (*sql.DB, error) {
	dsn := strings.TrimSpace(conf.DSN)
	if dsn == "" {
		return nil, PostgresErr{Underlying: fmt.Errorf("No DSN configured")}
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, PostgresErr{Underlying: err}
	}
	pingCtx, cancel := context.WithTimeout(ctx, QueryTimeout(conf))
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, PostgresErr{Underlying: err}
	}
	return db, nil
}

// QueryTimeout returns the configured per-query timeout, or the default
func QueryTimeout(conf config.PostgresClient) time.Duration {
	if conf.QueryTimeout > 0 {
		return conf.QueryTimeout
	}
	return DefaultQueryTimeout
}
