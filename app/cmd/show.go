package cmd

import (
	"encoding/json"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/infodocs/internal/config"
)

const redactedValue = "[redacted]"

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show information",
	Long:  `Sometimes you just need to know more`,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config",
	Long:  `Renders the config that we end up using, with passwords and tokens redacted`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := json.MarshalIndent(redacted(appConfig), "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Error marshalling config to JSON")
		} else {
			log.Info().Msg(string(out))
		}
	},
}

// redacted returns a copy of the config that is safe to print. The passed config is left alone.
func redacted(app config.App) config.App {
	if app.Elasticsearch.User != nil {
		user := *app.Elasticsearch.User
		user.Password = redactedValue
		app.Elasticsearch.User = &user
	}
	if app.Auth != nil {
		users := make([]config.BasicAuthUser, 0, len(app.Auth.BasicAuth))
		for _, u := range app.Auth.BasicAuth {
			u.Password = redactedValue
			users = append(users, u)
		}
		app.Auth = &config.Auth{BasicAuth: users}
	}
	if app.ApmClient != nil && app.ApmClient.SecretToken != nil {
		apmClient := *app.ApmClient
		token := redactedValue
		apmClient.SecretToken = &token
		app.ApmClient = &apmClient
	}
	if app.Stores.Legacy.Postgres != nil {
		pg := *app.Stores.Legacy.Postgres
		pg.DSN = redactedDSN(pg.DSN)
		app.Stores.Legacy.Postgres = &pg
	}
	return app
}

// redactedDSN hides the password in URL style DSNs. Anything else is hidden entirely, since
// key=value DSNs can carry the password anywhere.
func redactedDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return redactedValue
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redactedValue)
		}
	}
	return u.String()
}
