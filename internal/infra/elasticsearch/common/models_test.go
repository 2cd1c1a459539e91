package common

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"testing"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/infodocs/internal/domain/metadata"
)

func TestUnexpectedEsStatusError(t *testing.T) {
	resp := esapi.Response{
		StatusCode: 503,
		Body:       ioutil.NopCloser(bytes.NewBufferString(`{"error":"unavailable"}`)),
	}
	err := UnexpectedEsStatusError(&resp)
	assert.Equal(t, `Error from Elasticsearch: Unexpected status from ES: [503], body: [{"error":"unavailable"}]`, err.Error())
}

func TestEsBulkResponse_decoding(t *testing.T) {
	raw := `{
  "took": 3,
  "errors": true,
  "items": [
    {"create": {"_index": "infodocs", "_id": "a-info", "_seq_no": 4, "_primary_term": 2, "result": "created", "status": 201}},
    {"index": {"_index": "infodocs", "_id": "b-info", "status": 409, "error": {"type": "version_conflict_engine_exception", "reason": "conflict"}}},
    {"delete": {"_index": "infodocs", "_id": "c-info", "status": 404, "result": "not_found"}}
  ]
}`
	var resp EsBulkResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	require.Len(t, resp.Items, 3)

	created := resp.Items[0].Info()
	assert.True(t, created.IsOk())
	assert.Equal(t, metadata.Version{SeqNum: 4, PrimaryTerm: 2}, created.Version())

	conflict := resp.Items[1].Info()
	assert.False(t, conflict.IsOk())
	assert.Equal(t, "status [409], type [version_conflict_engine_exception], reason [conflict]", conflict.ErrorDescription())

	missing := resp.Items[2].Info()
	assert.False(t, missing.IsOk())
	assert.Equal(t, "status [404]", missing.ErrorDescription())
}

func TestJsonSerdesErr_Unwrap(t *testing.T) {
	single := JsonSerdesErr{Underlying: []error{assert.AnError}}
	assert.Equal(t, assert.AnError, single.Unwrap())

	multiple := JsonSerdesErr{Underlying: []error{assert.AnError, assert.AnError}}
	assert.Error(t, multiple.Unwrap())
}
