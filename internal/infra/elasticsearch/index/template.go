package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/config"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/common"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/infodoc"
)

type TemplateName string
type Pattern = string
type Json = map[string]interface{}
type Mappings = map[string]interface{}

// Template defines a template to be applied when setup is run
type Template struct {
	name     TemplateName // ignored when serialising because the name doesn't start with a capital
	Patterns []Pattern    `json:"index_patterns"`
	Mappings Mappings     `json:"mappings,omitempty"`
}

func (t *Template) Name() TemplateName {
	return t.name
}

func NewTemplate(name TemplateName, patterns []Pattern, mappings Mappings) Template {
	return Template{name: name, Patterns: patterns, Mappings: mappings}
}

type TemplateSetup interface {
	// Run puts all the templates
	Run(ctx context.Context) error
	// Check returns TemplatesNotInstalled if any of the templates are missing
	Check(ctx context.Context) error
}

// TemplatesSetup holds a list of Templates and has the ability to actually
// send them to the server
type TemplatesSetup struct {
	esClient  *elasticsearch.Client
	Templates []Template
}

// DefaultTemplateSetup returns the Template setter upper for the indices the given stores live in.
// The legacy store is in Elasticsearch unless it is explicitly set to Postgres.
func DefaultTemplateSetup(esClient *elasticsearch.Client, stores config.Stores) TemplateSetup {
	templates := []Template{
		InfoDocsTemplate(".infodocs_index_template", CanonicalIndexName(stores)),
	}
	if stores.Legacy.Kind != config.PostgresLegacyStore {
		templates = append(templates, InfoDocsTemplate(".infodocs_legacy_index_template", LegacyIndexName(stores)))
	}
	return &TemplatesSetup{
		esClient:  esClient,
		Templates: templates,
	}
}

// CanonicalIndexName returns the configured canonical index, or the default one
func CanonicalIndexName(stores config.Stores) common.IndexName {
	if stores.Canonical.Index != "" {
		return common.IndexName(stores.Canonical.Index)
	}
	return infodoc.DefaultCanonicalIndex
}

// LegacyIndexName returns the configured legacy index, or the default one
func LegacyIndexName(stores config.Stores) common.IndexName {
	if stores.Legacy.Index != "" {
		return common.IndexName(stores.Legacy.Index)
	}
	return infodoc.DefaultLegacyIndex
}

// Runs the setup
func (s *TemplatesSetup) Run(ctx context.Context) error {
	var errors []error
	for _, template := range s.Templates {
		if err := s.putTemplate(ctx, &template); err != nil {
			errors = append(errors, err)
		}
	}
	if len(errors) != 0 {
		return PutTemplateErrors{Errors: errors}
	} else {
		return nil
	}
}

// Checks if the current TemplatesSetup was run.
//
// This is currently a shallow check for template presence only.
func (s *TemplatesSetup) Check(ctx context.Context) error {
	indexTemplateNames := make([]string, 0, len(s.Templates))
	for _, t := range s.Templates {
		indexTemplateNames = append(indexTemplateNames, string(t.Name()))
	}

	indexTemplatesGetReq := esapi.IndicesGetTemplateRequest{Name: indexTemplateNames}

	rawResp, err := indexTemplatesGetReq.Do(ctx, s.esClient)
	if err != nil {
		return common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	switch rawResp.StatusCode {
	case 200:
		var mappings map[string]interface{}
		if err = json.NewDecoder(rawResp.Body).Decode(&mappings); err != nil {
			return common.JsonSerdesErr{Underlying: []error{err}}
		}
		var notPresent []string
		for _, name := range indexTemplateNames {
			if _, ok := mappings[name]; !ok {
				notPresent = append(notPresent, name)
			}
		}
		if len(notPresent) != 0 {
			return TemplatesNotInstalled{NotInstalled: notPresent}
		} else {
			return nil
		}
	case 404:
		return TemplatesNotInstalled{NotInstalled: indexTemplateNames}
	default:
		return common.UnexpectedEsStatusError(rawResp)
	}
}

func (s *TemplatesSetup) putTemplate(ctx context.Context, t *Template) error {
	asBytes, err := json.Marshal(t)
	if err != nil {
		return common.JsonSerdesErr{Underlying: []error{err}}
	}
	log.Info().RawJSON("body", asBytes).Str("template_name", string(t.name)).Msg("Applying template")
	putTemplateReq := esapi.IndicesPutTemplateRequest{
		Body: bytes.NewReader(asBytes),
		Name: string(t.name),
	}
	rawResp, err := putTemplateReq.Do(ctx, s.esClient)
	if err != nil {
		return common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	switch rawResp.StatusCode {
	case 200:
		return nil
	default:
		return common.UnexpectedEsStatusError(rawResp)
	}
}

type PutTemplateErrors struct {
	Errors []error
}

func (e PutTemplateErrors) Error() string {
	return fmt.Sprintf("Errors encountered [%v]", e.Errors)
}

type TemplatesNotInstalled struct {
	NotInstalled []string
}

func (t TemplatesNotInstalled) Error() string {
	return fmt.Sprintf("One or more app index templates were not installed. Please run the setup command to install them [%v]", t.NotInstalled)
}

// Templates

// InfoDocsTemplate maps info docs in the given index. Transition names and muting history are
// keyed by whatever the processing engine runs, so neither is indexed, to prevent mapping explosions.
func InfoDocsTemplate(name TemplateName, index common.IndexName) Template {
	return NewTemplate(
		name,
		[]Pattern{Pattern(index)},
		Mappings{
			"_source": Json{
				"enabled": true,
			},
			"dynamic": false,
			"properties": Json{
				"type": Json{
					"type": "keyword",
				},
				"doc_id": Json{
					"type": "keyword",
				},
				"initial_replication_date": Json{
					"type": "date",
				},
				"latest_replication_date": Json{
					"type": "date",
				},
				"transitions": Json{
					"type":    "object",
					"enabled": false,
				},
				"muting_history": Json{
					"type":    "object",
					"enabled": false,
				},
			},
		},
	)
}
