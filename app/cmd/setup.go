package cmd

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/common"
	"github.com/lloydmeta/infodocs/internal/infra/postgres"
	"github.com/lloydmeta/infodocs/internal/infra/server"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run infodocs setup",
	Long:  "Runs various setup routines for infodocs. Includes Index Templates, and the legacy Postgres table (if configured)",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		esClient, err := common.NewClient(appConfig.Elasticsearch)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not setup Elasticsearch client")
		}

		var db *sql.DB
		if appConfig.Stores.Legacy.Kind == config.PostgresLegacyStore && appConfig.Stores.Legacy.Postgres != nil {
			db, err = postgres.NewDB(ctx, *appConfig.Stores.Legacy.Postgres)
			if err != nil {
				log.Fatal().Err(err).Msg("Could not connect to Postgres")
			}
			defer db.Close()
		}

		if err := server.NewSetup(esClient, db, &appConfig).RunIfNeeded(ctx); err != nil {
			log.Fatal().Err(err).Msg("Setup failed")
		}
		log.Info().Msg("Setup complete.")
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
