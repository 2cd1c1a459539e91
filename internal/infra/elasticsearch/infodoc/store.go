package infodoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/domain/metadata"
	"github.com/lloydmeta/infodocs/internal/infra/elasticsearch/common"
	"github.com/lloydmeta/infodocs/internal/infra/persisted"
)

// Default names, overridable through config
const DefaultCanonicalIndex common.IndexName = ".infodocs"
const DefaultLegacyIndex common.IndexName = ".infodocs_legacy"

const indexNotFoundType = "index_not_found_exception"

// EsStore keeps info docs in a single Elasticsearch index, using sequence numbers and primary
// terms for optimistic locking.
type EsStore struct {
	client *elasticsearch.Client
	index  common.IndexName
}

func NewStore(client *elasticsearch.Client, index common.IndexName) infodoc.Store {
	return &EsStore{client: client, index: index}
}

func (e *EsStore) Get(ctx context.Context, id infodoc.Id) (*infodoc.InfoDoc, error) {
	getReq := esapi.GetRequest{
		Index:      string(e.index),
		DocumentID: string(id),
	}
	rawResp, err := getReq.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()

	switch rawResp.StatusCode {
	case 200:
		var response esHitPersistedInfoDoc
		if err := json.NewDecoder(rawResp.Body).Decode(&response); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		return response.toDomainInfoDoc()
	case 404:
		return nil, infodoc.NotFound{ID: id}
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsStore) Put(ctx context.Context, doc *infodoc.InfoDoc) (metadata.Version, error) {
	if doc.Deleted {
		return e.delete(ctx, doc)
	}
	asBytes, err := json.Marshal(persisted.FromDomain(doc))
	if err != nil {
		return metadata.Version{}, common.JsonSerdesErr{Underlying: []error{err}}
	}

	var req esapi.Request
	if doc.Version.IsZero() {
		// Fails if someone else has created it in the meantime
		req = esapi.CreateRequest{
			Index:      string(e.index),
			DocumentID: string(doc.ID),
			Body:       bytes.NewReader(asBytes),
		}
	} else {
		// Purposely using the Index API (rather than the update API) so as to
		// not get bit by old stale data due to partial updates.
		req = esapi.IndexRequest{
			Index:         string(e.index),
			DocumentID:    string(doc.ID),
			Body:          bytes.NewReader(asBytes),
			IfSeqNo:       esapi.IntPtr(int(doc.Version.SeqNum)),
			IfPrimaryTerm: esapi.IntPtr(int(doc.Version.PrimaryTerm)),
		}
	}
	rawResp, err := req.Do(ctx, e.client)
	if err != nil {
		return metadata.Version{}, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	return versionFromWriteResp(doc.ID, rawResp)
}

func (e *EsStore) delete(ctx context.Context, doc *infodoc.InfoDoc) (metadata.Version, error) {
	deleteReq := esapi.DeleteRequest{
		Index:      string(e.index),
		DocumentID: string(doc.ID),
	}
	if !doc.Version.IsZero() {
		deleteReq.IfSeqNo = esapi.IntPtr(int(doc.Version.SeqNum))
		deleteReq.IfPrimaryTerm = esapi.IntPtr(int(doc.Version.PrimaryTerm))
	}
	rawResp, err := deleteReq.Do(ctx, e.client)
	if err != nil {
		return metadata.Version{}, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	return versionFromWriteResp(doc.ID, rawResp)
}

func versionFromWriteResp(id infodoc.Id, rawResp *esapi.Response) (metadata.Version, error) {
	respStatus := rawResp.StatusCode
	switch {
	case 200 <= respStatus && respStatus <= 299:
		var resp common.EsWriteResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&resp); err != nil {
			return metadata.Version{}, common.JsonSerdesErr{Underlying: []error{err}}
		}
		return resp.Version(), nil
	case respStatus == 409:
		return metadata.Version{}, infodoc.InvalidVersion{ID: id}
	case respStatus == 404:
		return metadata.Version{}, infodoc.NotFound{ID: id}
	default:
		return metadata.Version{}, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsStore) BatchGet(ctx context.Context, ids []infodoc.Id) ([]infodoc.Row, error) {
	if len(ids) == 0 {
		return []infodoc.Row{}, nil
	}
	asStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		asStrings = append(asStrings, string(id))
	}
	bodyBytes, err := json.Marshal(esMgetBody{Ids: asStrings})
	if err != nil {
		return nil, common.JsonSerdesErr{Underlying: []error{err}}
	}
	mgetReq := esapi.MgetRequest{
		Index: string(e.index),
		Body:  bytes.NewReader(bodyBytes),
	}
	rawResp, err := mgetReq.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()

	switch rawResp.StatusCode {
	case 200:
		var response esMgetResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&response); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		if len(response.Docs) != len(ids) {
			return nil, common.ElasticsearchErr{Underlying: fmt.Errorf("Asked for [%d] docs but got [%d]", len(ids), len(response.Docs))}
		}
		rows := make([]infodoc.Row, 0, len(ids))
		// docs come back in the same order they were asked for
		for idx, hit := range response.Docs {
			row := infodoc.Row{ID: ids[idx]}
			switch {
			case hit.Error != nil && hit.Error.Type == indexNotFoundType:
			case hit.Error != nil:
				return nil, common.ElasticsearchErr{Underlying: fmt.Errorf("Failed to get [%s]: type [%s], reason [%s]", hit.ID, hit.Error.Type, hit.Error.Reason)}
			case hit.Found:
				doc, err := hit.toDomainInfoDoc()
				if err != nil {
					return nil, err
				}
				row.Doc = doc
			}
			rows = append(rows, row)
		}
		return rows, nil
	case 404:
		rows := make([]infodoc.Row, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, infodoc.Row{ID: id})
		}
		return rows, nil
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsStore) BatchWrite(ctx context.Context, docs []infodoc.InfoDoc) ([]infodoc.WriteResult, error) {
	if len(docs) == 0 {
		return []infodoc.WriteResult{}, nil
	}
	bulkReqBody, err := e.buildBulkNdJsonBytes(docs)
	if err != nil {
		return nil, err
	}
	bulkReq := esapi.BulkRequest{
		Body: bytes.NewReader(bulkReqBody),
	}
	rawResp, err := bulkReq.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	if rawResp.IsError() {
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
	var response common.EsBulkResponse
	if err := json.NewDecoder(rawResp.Body).Decode(&response); err != nil {
		return nil, common.JsonSerdesErr{Underlying: []error{err}}
	}
	if len(response.Items) != len(docs) {
		return nil, common.ElasticsearchErr{Underlying: fmt.Errorf("Sent [%d] bulk ops but got [%d] results", len(docs), len(response.Items))}
	}

	results := make([]infodoc.WriteResult, 0, len(docs))
	// we are guaranteed to get the the responses in the same order that the bulk request was built
	for idx, item := range response.Items {
		info := item.Info()
		result := infodoc.WriteResult{ID: docs[idx].ID}
		switch {
		case info.IsOk():
			result.Version = info.Version()
		case info.Status == 409:
			result.Err = infodoc.InvalidVersion{ID: result.ID}
		case info.Status == 404:
			result.Err = infodoc.NotFound{ID: result.ID}
		default:
			result.Err = common.ElasticsearchErr{Underlying: fmt.Errorf("Bulk op failed for [%s]: %s", result.ID, info.ErrorDescription())}
		}
		results = append(results, result)
	}
	if response.Errors {
		log.Debug().Str("index", string(e.index)).Int("ops", len(docs)).Msg("Bulk write had item failures")
	}
	return results, nil
}

func (e *EsStore) buildBulkNdJsonBytes(docs []infodoc.InfoDoc) ([]byte, error) {
	var errAcc []error
	var bytesAcc []byte
	for i := range docs {
		doc := &docs[i]
		op, source := e.buildBulkOp(doc)
		opBytes, err := json.Marshal(op)
		if err != nil {
			errAcc = append(errAcc, err)
			continue
		}
		bytesAcc = append(bytesAcc, opBytes...)
		bytesAcc = append(bytesAcc, "\n"...)
		if source == nil {
			continue
		}
		dataBytes, err := json.Marshal(source)
		if err != nil {
			errAcc = append(errAcc, err)
			continue
		}
		bytesAcc = append(bytesAcc, dataBytes...)
		bytesAcc = append(bytesAcc, "\n"...)
	}
	if len(errAcc) != 0 {
		return nil, common.JsonSerdesErr{Underlying: errAcc}
	} else {
		return bytesAcc, nil
	}
}

// buildBulkOp returns the action line for the doc, and its source if the action needs one
func (e *EsStore) buildBulkOp(doc *infodoc.InfoDoc) (bulkOp, *persisted.InfoDoc) {
	opData := bulkOpData{
		Id:    string(doc.ID),
		Index: string(e.index),
	}
	if !doc.Version.IsZero() {
		seqNo := uint64(doc.Version.SeqNum)
		primaryTerm := uint64(doc.Version.PrimaryTerm)
		opData.IfSeqNo = &seqNo
		opData.IfPrimaryTerm = &primaryTerm
	}
	switch {
	case doc.Deleted:
		return bulkOp{Delete: &opData}, nil
	case doc.Version.IsZero():
		source := persisted.FromDomain(doc)
		return bulkOp{Create: &opData}, &source
	default:
		source := persisted.FromDomain(doc)
		return bulkOp{Index: &opData}, &source
	}
}

type bulkOp struct {
	Create *bulkOpData `json:"create,omitempty"`
	Index  *bulkOpData `json:"index,omitempty"`
	Delete *bulkOpData `json:"delete,omitempty"`
}

type bulkOpData struct {
	Id            string  `json:"_id"`
	Index         string  `json:"_index"`
	IfSeqNo       *uint64 `json:"if_seq_no,omitempty"`
	IfPrimaryTerm *uint64 `json:"if_primary_term,omitempty"`
}

type esMgetBody struct {
	Ids []string `json:"ids"`
}

type esMgetResponse struct {
	Docs []esHitPersistedInfoDoc `json:"docs"`
}

type esHitError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type esHitPersistedInfoDoc struct {
	ID          string            `json:"_id"`
	Index       string            `json:"_index"`
	SeqNum      uint64            `json:"_seq_no"`
	PrimaryTerm uint64            `json:"_primary_term"`
	Found       bool              `json:"found"`
	Source      persisted.InfoDoc `json:"_source"`
	Error       *esHitError       `json:"error,omitempty"`
}

func (hit *esHitPersistedInfoDoc) toDomainInfoDoc() (*infodoc.InfoDoc, error) {
	return hit.Source.ToDomain(infodoc.Id(hit.ID), metadata.Version{
		SeqNum:      metadata.SeqNum(hit.SeqNum),
		PrimaryTerm: metadata.PrimaryTerm(hit.PrimaryTerm),
	})
}
