package server

import (
	"context"
	"database/sql"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/index"
	pgInfodoc "github.com/lloydmeta/infodocs/internal/infra/postgres/infodoc"
)

// Setup abstracts away:
//
// 1. Setting up the environment for running the info docs server
// 2. Checking that things are set up
type Setup interface {

	// Check returns an error if all the necessary setup is not complete
	Check(ctx context.Context) error

	// RunIfNeeded attempts to run the subroutines necessary, no more no less
	RunIfNeeded(ctx context.Context) error
}

// tableSetup is satisfied by stores that keep their data in a SQL table
type tableSetup interface {
	EnsureTable(ctx context.Context) error
	CheckTable(ctx context.Context) error
}

type impl struct {
	templateSetup index.TemplateSetup
	// nil unless legacy info docs live in Postgres
	legacyTable tableSetup
}

// NewSetup returns a Setup implementation. db should be nil when the legacy store
// isn't Postgres.
func NewSetup(esClient *elasticsearch.Client, db *sql.DB, config *config.App) Setup {
	s := impl{
		templateSetup: index.DefaultTemplateSetup(esClient, config.Stores),
	}
	if db != nil && config.Stores.Legacy.Postgres != nil {
		s.legacyTable = pgInfodoc.NewStore(db, *config.Stores.Legacy.Postgres)
	}
	return &s
}

func (i *impl) Check(ctx context.Context) error {
	if err := i.templateSetup.Check(ctx); err != nil {
		return err
	} else if i.legacyTable != nil {
		return i.legacyTable.CheckTable(ctx)
	} else {
		return nil
	}
}

func (i *impl) RunIfNeeded(ctx context.Context) error {
	if err := i.templateSetup.Check(ctx); err != nil {
		if _, templateNotFound := err.(index.TemplatesNotInstalled); templateNotFound {
			log.Info().Msg("Setting up Index templates")
			if err := i.templateSetup.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to install index templates")
				return err
			}
		} else {
			log.Info().Msg("Skipping Index template setup")
			return err
		}
	}

	if i.legacyTable != nil {
		if err := i.legacyTable.CheckTable(ctx); err != nil {
			if _, tableNotFound := err.(pgInfodoc.TableNotInstalled); tableNotFound {
				log.Info().Msg("Setting up legacy info doc table")
				if err := i.legacyTable.EnsureTable(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to create legacy info doc table")
					return err
				}
			} else {
				return err
			}
		}
	}

	log.Info().Msg("Setup complete")
	return nil
}
