package infodoc

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/common"
)

var ctx = context.Background()

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeTransport answers every request with the same canned response, recording what was sent
type fakeTransport struct {
	status   int
	respBody string
	seen     []recordedRequest
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		asBytes, _ := ioutil.ReadAll(req.Body)
		body = string(asBytes)
	}
	f.seen = append(f.seen, recordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Body:   body,
	})
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       ioutil.NopCloser(bytes.NewBufferString(f.respBody)),
	}, nil
}

func buildStore(t *testing.T, status int, respBody string) (*EsStore, *fakeTransport) {
	transport := &fakeTransport{status: status, respBody: respBody}
	client, err := elasticsearch.NewClient(elasticsearch.Config{Transport: transport})
	require.NoError(t, err)
	return &EsStore{client: client, index: "idx"}, transport
}

func TestEsStore_Get(t *testing.T) {
	store, transport := buildStore(t, 200, `{
  "_index": "idx", "_id": "abc-info", "_seq_no": 7, "_primary_term": 2, "found": true,
  "_source": {"type": "info", "doc_id": "abc", "latest_replication_date": "2020-03-04T05:06:07Z", "transitions": {}}
}`)
	doc, err := store.Get(ctx, "abc-info")
	require.NoError(t, err)
	assert.EqualValues(t, "abc", doc.OwnerID)
	assert.Equal(t, metadata.Version{SeqNum: 7, PrimaryTerm: 2}, doc.Version)
	assert.NotNil(t, doc.Transitions)
	assert.True(t, doc.InitialReplicationDate.IsUnknown())
	assert.Equal(t, time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC), time.Time(doc.LatestReplicationDate).UTC())

	require.Len(t, transport.seen, 1)
	assert.Equal(t, "GET", transport.seen[0].Method)
	assert.Equal(t, "/idx/_doc/abc-info", transport.seen[0].Path)
}

func TestEsStore_Get_statuses(t *testing.T) {
	store, _ := buildStore(t, 404, `{"found": false}`)
	_, err := store.Get(ctx, "abc-info")
	assert.Equal(t, infodoc.NotFound{ID: "abc-info"}, err)

	store, _ = buildStore(t, 500, `{}`)
	_, err = store.Get(ctx, "abc-info")
	assert.IsType(t, common.ElasticsearchErr{}, err)
}

func TestEsStore_Put_create(t *testing.T) {
	store, transport := buildStore(t, 201, `{"_id": "abc-info", "_seq_no": 0, "_primary_term": 1, "result": "created"}`)
	doc := infodoc.Blank("abc", time.Time{})
	version, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	assert.Equal(t, metadata.Version{SeqNum: 0, PrimaryTerm: 1}, version)

	require.Len(t, transport.seen, 1)
	assert.Equal(t, "/idx/_create/abc-info", transport.seen[0].Path)
	assert.JSONEq(t, `{"type":"info","doc_id":"abc"}`, transport.seen[0].Body)
}

func TestEsStore_Put_update(t *testing.T) {
	store, transport := buildStore(t, 200, `{"_id": "abc-info", "_seq_no": 5, "_primary_term": 1, "result": "updated"}`)
	doc := infodoc.Blank("abc", time.Time{})
	doc.Version = metadata.Version{SeqNum: 4, PrimaryTerm: 1}
	version, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	assert.Equal(t, metadata.Version{SeqNum: 5, PrimaryTerm: 1}, version)

	require.Len(t, transport.seen, 1)
	assert.Equal(t, "PUT", transport.seen[0].Method)
	assert.Equal(t, "/idx/_doc/abc-info", transport.seen[0].Path)
	assert.Contains(t, transport.seen[0].Query, "if_seq_no=4")
	assert.Contains(t, transport.seen[0].Query, "if_primary_term=1")
}

func TestEsStore_Put_delete(t *testing.T) {
	store, transport := buildStore(t, 200, `{"_id": "abc-info", "_seq_no": 6, "_primary_term": 1, "result": "deleted"}`)
	doc := infodoc.Blank("abc", time.Time{})
	doc.Version = metadata.Version{SeqNum: 5, PrimaryTerm: 1}
	doc.Deleted = true
	_, err := store.Put(ctx, &doc)
	require.NoError(t, err)
	require.Len(t, transport.seen, 1)
	assert.Equal(t, "DELETE", transport.seen[0].Method)
	assert.Contains(t, transport.seen[0].Query, "if_seq_no=5")
}

func TestEsStore_Put_statuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{
			"conflict",
			409,
			infodoc.InvalidVersion{ID: "abc-info"},
		},
		{
			"not found",
			404,
			infodoc.NotFound{ID: "abc-info"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := buildStore(t, tt.status, `{}`)
			doc := infodoc.Blank("abc", time.Time{})
			_, err := store.Put(ctx, &doc)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestEsStore_BatchGet(t *testing.T) {
	store, transport := buildStore(t, 200, `{"docs": [
  {"_index": "idx", "_id": "a-info", "_seq_no": 1, "_primary_term": 1, "found": true, "_source": {"type": "info", "doc_id": "a"}},
  {"_index": "idx", "_id": "b-info", "found": false}
]}`)
	rows, err := store.BatchGet(ctx, []infodoc.Id{"a-info", "b-info"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, "a-info", rows[0].ID)
	require.NotNil(t, rows[0].Doc)
	assert.Nil(t, rows[0].Doc.Transitions)
	assert.EqualValues(t, "b-info", rows[1].ID)
	assert.Nil(t, rows[1].Doc)

	require.Len(t, transport.seen, 1)
	assert.Equal(t, "/idx/_mget", transport.seen[0].Path)
	assert.JSONEq(t, `{"ids":["a-info","b-info"]}`, transport.seen[0].Body)
}

func TestEsStore_BatchGet_missingIndex(t *testing.T) {
	store, _ := buildStore(t, 200, `{"docs": [
  {"_index": "idx", "_id": "a-info", "error": {"type": "index_not_found_exception", "reason": "no such index [idx]"}}
]}`)
	rows, err := store.BatchGet(ctx, []infodoc.Id{"a-info"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Doc)
}

func TestEsStore_BatchGet_errors(t *testing.T) {
	store, _ := buildStore(t, 200, `{"docs": [
  {"_index": "idx", "_id": "a-info", "error": {"type": "shard_failure", "reason": "boom"}}
]}`)
	_, err := store.BatchGet(ctx, []infodoc.Id{"a-info"})
	assert.IsType(t, common.ElasticsearchErr{}, err)

	store, _ = buildStore(t, 200, `{"docs": []}`)
	_, err = store.BatchGet(ctx, []infodoc.Id{"a-info"})
	assert.IsType(t, common.ElasticsearchErr{}, err)
}

func TestEsStore_BatchGet_empty(t *testing.T) {
	store, transport := buildStore(t, 200, `{}`)
	rows, err := store.BatchGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, transport.seen)
}

func TestEsStore_BatchWrite(t *testing.T) {
	store, transport := buildStore(t, 200, `{"took": 1, "errors": true, "items": [
  {"create": {"_id": "a-info", "_seq_no": 3, "_primary_term": 1, "status": 201}},
  {"index": {"_id": "b-info", "status": 409, "error": {"type": "version_conflict_engine_exception", "reason": "nope"}}},
  {"delete": {"_id": "c-info", "status": 404}},
  {"index": {"_id": "d-info", "status": 429, "error": {"type": "es_rejected_execution_exception", "reason": "busy"}}}
]}`)
	created := infodoc.Blank("a", time.Time{})
	updated := infodoc.Blank("b", time.Time{})
	updated.Version = metadata.Version{SeqNum: 9, PrimaryTerm: 1}
	updated.Transitions = infodoc.Transitions{}
	deleted := infodoc.Blank("c", time.Time{})
	deleted.Version = metadata.Version{SeqNum: 2, PrimaryTerm: 1}
	deleted.Deleted = true
	rejected := infodoc.Blank("d", time.Time{})
	rejected.Version = metadata.Version{SeqNum: 1, PrimaryTerm: 1}

	results, err := store.BatchWrite(ctx, []infodoc.InfoDoc{created, updated, deleted, rejected})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].IsOk())
	assert.Equal(t, metadata.Version{SeqNum: 3, PrimaryTerm: 1}, results[0].Version)
	assert.True(t, results[1].IsConflict())
	assert.Equal(t, infodoc.NotFound{ID: "c-info"}, results[2].Err)
	assert.IsType(t, common.ElasticsearchErr{}, results[3].Err)

	require.Len(t, transport.seen, 1)
	assert.Equal(t, "/_bulk", transport.seen[0].Path)
	lines := strings.Split(strings.TrimSuffix(transport.seen[0].Body, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.JSONEq(t, `{"create":{"_id":"a-info","_index":"idx"}}`, lines[0])
	assert.JSONEq(t, `{"type":"info","doc_id":"a"}`, lines[1])
	assert.JSONEq(t, `{"index":{"_id":"b-info","_index":"idx","if_seq_no":9,"if_primary_term":1}}`, lines[2])
	assert.JSONEq(t, `{"type":"info","doc_id":"b","transitions":{}}`, lines[3])
	assert.JSONEq(t, `{"delete":{"_id":"c-info","_index":"idx","if_seq_no":2,"if_primary_term":1}}`, lines[4])
	assert.JSONEq(t, `{"index":{"_id":"d-info","_index":"idx","if_seq_no":1,"if_primary_term":1}}`, lines[5])
}

func TestEsStore_BatchWrite_requestFailure(t *testing.T) {
	store, _ := buildStore(t, 400, `{"error": "bad"}`)
	_, err := store.BatchWrite(ctx, []infodoc.InfoDoc{infodoc.Blank("a", time.Time{})})
	assert.IsType(t, common.ElasticsearchErr{}, err)
}

func TestEsStore_BatchWrite_empty(t *testing.T) {
	store, transport := buildStore(t, 200, `{}`)
	results, err := store.BatchWrite(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, transport.seen)
}
