package infodocs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/lloydmeta/infodocs/internal/api/models/common"
	"github.com/lloydmeta/infodocs/internal/api/models/infodoc"
	domainInfodoc "github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/infra/server/binding/validation"
	"github.com/lloydmeta/infodocs/internal/infra/server/routing"
)

func init() {
	validation.SetUpValidators()
}

var conflictErr = common.ApiError{
	StatusCode: http.StatusConflict,
	Body: common.Body{
		Message: "nope",
	},
}

func Test_RecordWrites_Ok(t *testing.T) {
	router, mockController := setupRouter()
	at := now
	resp := performRequest(router, http.MethodPost, "/infodocs/writes", infodoc.RecordWrites{
		OwnerIds: []domainInfodoc.OwnerId{"a", "b"},
		At:       &at,
	}, nil)
	assert.EqualValues(t, http.StatusNoContent, resp.Code)
	assert.EqualValues(t, 1, mockController.recordWritesCalled)
	assert.Equal(t, []domainInfodoc.OwnerId{"a", "b"}, mockController.owners)
	assert.True(t, now.Equal(*mockController.at))
}

func Test_RecordWrites_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{
			"no owners",
			infodoc.RecordWrites{OwnerIds: []domainInfodoc.OwnerId{}},
		},
		{
			"blank owner",
			infodoc.RecordWrites{OwnerIds: []domainInfodoc.OwnerId{"a", "  "}},
		},
		{
			"not json",
			"hmm",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mockController := setupRouter()
			resp := performRequest(router, http.MethodPost, "/infodocs/writes", tt.body, nil)
			assert.EqualValues(t, http.StatusBadRequest, resp.Code)
			assert.EqualValues(t, 0, mockController.recordWritesCalled)
		})
	}
}

func Test_RecordWrites_Err(t *testing.T) {
	router, mockController := setupRouter()
	mockController.recordWritesOverride = func() *common.ApiError {
		return &conflictErr
	}
	resp := performRequest(router, http.MethodPost, "/infodocs/writes", infodoc.RecordWrites{
		OwnerIds: []domainInfodoc.OwnerId{"a"},
	}, nil)
	assertApiErr(t, conflictErr, resp)
}

func Test_Resolve_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/infodocs/resolutions", infodoc.Resolutions{
		Changes: []infodoc.Change{{ID: "mock", Seq: "1", Doc: &infodoc.OwnerDoc{Rev: "1-a"}}},
	}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.resolveCalled)
	var docs []infodoc.InfoDoc
	if err := json.Unmarshal(resp.Body.Bytes(), &docs); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, []infodoc.InfoDoc{mockApiInfoDoc}, docs)
	}
}

func Test_Resolve_Invalid(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/infodocs/resolutions", infodoc.Resolutions{
		Changes: []infodoc.Change{{ID: ""}},
	}, nil)
	assert.EqualValues(t, http.StatusBadRequest, resp.Code)
	assert.EqualValues(t, 0, mockController.resolveCalled)
}

func Test_Get_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodGet, "/infodocs/mock", nil, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.getCalled)
	assert.EqualValues(t, "mock", mockController.owner)
	var doc infodoc.InfoDoc
	if err := json.Unmarshal(resp.Body.Bytes(), &doc); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, mockApiInfoDoc, doc)
	}
}

func Test_Get_Err(t *testing.T) {
	router, mockController := setupRouter()
	notFound := common.ApiError{
		StatusCode: http.StatusNotFound,
		Body: common.Body{
			Message: "not here",
		},
	}
	mockController.getOverride = func() (*infodoc.InfoDoc, *common.ApiError) {
		return nil, &notFound
	}
	resp := performRequest(router, http.MethodGet, "/infodocs/mock", nil, nil)
	assertApiErr(t, notFound, resp)
}

func Test_Get_InvalidOwnerId(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodGet, "/infodocs/%20%20", nil, nil)
	assert.EqualValues(t, http.StatusBadRequest, resp.Code)
	assert.EqualValues(t, 0, mockController.getCalled)
}

func Test_RecordTransitions_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPut, "/infodocs/mock/transitions", infodoc.TransitionRun{
		Seq:      "1",
		Rev:      "1-a",
		Outcomes: []infodoc.Outcome{{Transition: "t", Ok: true}},
	}, nil)
	assert.EqualValues(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 1, mockController.recordTransitionsCalled)
	assert.EqualValues(t, "mock", mockController.owner)
	assert.Equal(t, []infodoc.Outcome{{Transition: "t", Ok: true}}, mockController.run.Outcomes)
}

func Test_RecordTransitions_Invalid(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPut, "/infodocs/mock/transitions", infodoc.TransitionRun{
		Outcomes: []infodoc.Outcome{{Transition: ""}},
	}, nil)
	assert.EqualValues(t, http.StatusBadRequest, resp.Code)
	assert.EqualValues(t, 0, mockController.recordTransitionsCalled)
}

func Test_RecordTransitions_Err(t *testing.T) {
	router, mockController := setupRouter()
	mockController.recordTransitionsOverride = func() (*infodoc.InfoDoc, *common.ApiError) {
		return nil, &conflictErr
	}
	resp := performRequest(router, http.MethodPut, "/infodocs/mock/transitions", infodoc.TransitionRun{
		Outcomes: []infodoc.Outcome{{Transition: "t"}},
	}, nil)
	assertApiErr(t, conflictErr, resp)
}

func Test_RecordTransitionsBulk_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/infodocs/transitions", infodoc.TransitionRuns{
		Changes: []infodoc.ChangeTransitionRun{
			{ID: "a", Outcomes: []infodoc.Outcome{{Transition: "t", Ok: true}}},
			{ID: "b", Outcomes: []infodoc.Outcome{}},
		},
	}, nil)
	assert.EqualValues(t, http.StatusNoContent, resp.Code)
	assert.EqualValues(t, 1, mockController.recordTransitionsBulkCalled)
	assert.Len(t, mockController.runs, 2)
}

func Test_RecordTransitionsBulk_Invalid(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodPost, "/infodocs/transitions", infodoc.TransitionRuns{}, nil)
	assert.EqualValues(t, http.StatusBadRequest, resp.Code)
	assert.EqualValues(t, 0, mockController.recordTransitionsBulkCalled)
}

func Test_RecordTransitionsBulk_Err(t *testing.T) {
	router, mockController := setupRouter()
	mockController.recordTransitionsBulkOverride = func() *common.ApiError {
		return &conflictErr
	}
	resp := performRequest(router, http.MethodPost, "/infodocs/transitions", infodoc.TransitionRuns{
		Changes: []infodoc.ChangeTransitionRun{{ID: "a", Outcomes: []infodoc.Outcome{}}},
	}, nil)
	assertApiErr(t, conflictErr, resp)
}

func Test_Delete_Ok(t *testing.T) {
	router, mockController := setupRouter()
	resp := performRequest(router, http.MethodDelete, "/infodocs/mock", nil, nil)
	assert.EqualValues(t, http.StatusNoContent, resp.Code)
	assert.EqualValues(t, 1, mockController.deleteCalled)
	assert.EqualValues(t, "mock", mockController.owner)
}

func Test_Delete_Err(t *testing.T) {
	router, mockController := setupRouter()
	mockController.deleteOverride = func() *common.ApiError {
		return &conflictErr
	}
	resp := performRequest(router, http.MethodDelete, "/infodocs/mock", nil, nil)
	assertApiErr(t, conflictErr, resp)
}

func assertApiErr(t *testing.T, expected common.ApiError, resp *httptest.ResponseRecorder) {
	assert.EqualValues(t, expected.StatusCode, resp.Code)
	var body common.Body
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Error(err)
	} else {
		assert.EqualValues(t, expected.Body, body)
	}
}

func setupRouter() (*gin.Engine, *mockInfodocsController) {
	engine := gin.Default()
	mockController := mockInfodocsController{}
	topLevelRouterGroup := routing.NewTopLevelRoutesGroup(nil, engine)
	handler := RoutesHandler{Controller: &mockController}
	handler.RegisterRoutes(topLevelRouterGroup)

	return engine, &mockController
}

func performRequest(r http.Handler, method, url string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var bodyToSend io.Reader
	if body != nil {
		asBytes, _ := json.Marshal(body)
		bodyToSend = bytes.NewBuffer(asBytes)
	}
	req, _ := http.NewRequest(method, url, bodyToSend)
	if header != nil {
		req.Header = header
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var now = time.Now().UTC().Truncate(time.Second)

var mockDomainInfoDoc = domainInfodoc.Blank("mock", now)

var mockApiInfoDoc = infodoc.FromDomainInfoDoc(&mockDomainInfoDoc)

type mockInfodocsController struct {
	recordWritesCalled            uint
	recordWritesOverride          func() *common.ApiError
	resolveCalled                 uint
	resolveOverride               func() ([]infodoc.InfoDoc, *common.ApiError)
	getCalled                     uint
	getOverride                   func() (*infodoc.InfoDoc, *common.ApiError)
	recordTransitionsCalled       uint
	recordTransitionsOverride     func() (*infodoc.InfoDoc, *common.ApiError)
	recordTransitionsBulkCalled   uint
	recordTransitionsBulkOverride func() *common.ApiError
	deleteCalled                  uint
	deleteOverride                func() *common.ApiError

	owners []domainInfodoc.OwnerId
	at     *time.Time
	owner  domainInfodoc.OwnerId
	run    *infodoc.TransitionRun
	runs   []infodoc.ChangeTransitionRun
}

func (m *mockInfodocsController) RecordWrites(ctx context.Context, owners []domainInfodoc.OwnerId, at *time.Time) *common.ApiError {
	m.recordWritesCalled++
	m.owners = owners
	m.at = at
	if m.recordWritesOverride != nil {
		return m.recordWritesOverride()
	} else {
		return nil
	}
}

func (m *mockInfodocsController) Resolve(ctx context.Context, changes []infodoc.Change) ([]infodoc.InfoDoc, *common.ApiError) {
	m.resolveCalled++
	if m.resolveOverride != nil {
		return m.resolveOverride()
	} else {
		return []infodoc.InfoDoc{mockApiInfoDoc}, nil
	}
}

func (m *mockInfodocsController) Get(ctx context.Context, owner domainInfodoc.OwnerId) (*infodoc.InfoDoc, *common.ApiError) {
	m.getCalled++
	m.owner = owner
	if m.getOverride != nil {
		return m.getOverride()
	} else {
		return &mockApiInfoDoc, nil
	}
}

func (m *mockInfodocsController) RecordTransitions(ctx context.Context, owner domainInfodoc.OwnerId, run *infodoc.TransitionRun) (*infodoc.InfoDoc, *common.ApiError) {
	m.recordTransitionsCalled++
	m.owner = owner
	m.run = run
	if m.recordTransitionsOverride != nil {
		return m.recordTransitionsOverride()
	} else {
		return &mockApiInfoDoc, nil
	}
}

func (m *mockInfodocsController) RecordTransitionsBulk(ctx context.Context, runs []infodoc.ChangeTransitionRun) *common.ApiError {
	m.recordTransitionsBulkCalled++
	m.runs = runs
	if m.recordTransitionsBulkOverride != nil {
		return m.recordTransitionsBulkOverride()
	} else {
		return nil
	}
}

func (m *mockInfodocsController) Delete(ctx context.Context, owner domainInfodoc.OwnerId) *common.ApiError {
	m.deleteCalled++
	m.owner = owner
	if m.deleteOverride != nil {
		return m.deleteOverride()
	} else {
		return nil
	}
}
