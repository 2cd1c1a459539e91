package config

import "time"

// TopLevel exists so that the config file and env vars are namespaced
type TopLevel struct {
	Infodocs Infodocs `json:"infodocs" mapstructure:"infodocs"`
}

type Infodocs struct {
	Server App `json:"server" mapstructure:"server"`
}

type App struct {
	BindAddress     string              `json:"bind_address" mapstructure:"bind_address"`
	ShutdownTimeout time.Duration       `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Elasticsearch   ElasticsearchClient `json:"elasticsearch" mapstructure:"elasticsearch"`
	Stores          Stores              `json:"stores" mapstructure:"stores"`
	ApmClient       *ApmClient          `json:"apm,omitempty" mapstructure:"apm"`
	Auth            *Auth               `json:"auth,omitempty" mapstructure:"auth"`
	Logging         *Logging            `json:"logging,omitempty" mapstructure:"logging"`
	InfoDocs        InfoDocs            `json:"info_docs" mapstructure:"info_docs"`
}

type Logging struct {
	Json  *bool   `json:"json,omitempty" mapstructure:"json"`
	File  *string `json:"file,omitempty" mapstructure:"file"`
	Level *string `json:"level,omitempty" mapstructure:"level"`
}

type ElasticsearchClient struct {
	Addresses []string       `json:"addresses" mapstructure:"addresses"`
	User      *BasicAuthUser `json:"user,omitempty" mapstructure:"user"`
}

type ApmClient struct {
	Address     *string `json:"address,omitempty" mapstructure:"address"`
	SecretToken *string `json:"secret_token,omitempty" mapstructure:"secret_token"`
}

type Auth struct {
	BasicAuth []BasicAuthUser `json:"basic_auth" mapstructure:"basic_auth"`
}

type BasicAuthUser struct {
	Name     string `json:"name" mapstructure:"name"`
	Password string `json:"password" mapstructure:"password"`
}

// Stores says where canonical and legacy info docs live
type Stores struct {
	Canonical CanonicalStore `json:"canonical" mapstructure:"canonical"`
	Legacy    LegacyStore    `json:"legacy" mapstructure:"legacy"`
}

type CanonicalStore struct {
	Index string `json:"index" mapstructure:"index"`
}

type LegacyStoreKind string

const (
	ElasticsearchLegacyStore LegacyStoreKind = "elasticsearch"
	PostgresLegacyStore      LegacyStoreKind = "postgres"
)

type LegacyStore struct {
	Kind LegacyStoreKind `json:"kind" mapstructure:"kind"`
	// Used when Kind is elasticsearch
	Index string `json:"index,omitempty" mapstructure:"index"`
	// Used when Kind is postgres
	Postgres *PostgresClient `json:"postgres,omitempty" mapstructure:"postgres"`
}

type PostgresClient struct {
	DSN          string        `json:"dsn" mapstructure:"dsn"`
	Table        string        `json:"table" mapstructure:"table"`
	QueryTimeout time.Duration `json:"query_timeout" mapstructure:"query_timeout"`
}

// InfoDocs holds settings for the info doc service
type InfoDocs struct {
	VersionConflictRetryTimes uint          `json:"version_conflict_retry_times" mapstructure:"version_conflict_retry_times"`
	RetryMinWait              time.Duration `json:"retry_min_wait" mapstructure:"retry_min_wait"`
	RetryMaxWait              time.Duration `json:"retry_max_wait" mapstructure:"retry_max_wait"`
}
