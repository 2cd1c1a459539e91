package infodoc

import (
	"context"
	"net/http"
	"time"

	"github.com/lloydmeta/infodocs/internal/api/models/common"
	"github.com/lloydmeta/infodocs/internal/api/models/infodoc"
	domainInfodoc "github.com/lloydmeta/infodocs/internal/domain/infodoc"
)

// Controller is an interface that defines the methods that are available to the routing
// layer. It is framework-agnostic
type Controller interface {

	// RecordWrites records that the given owner docs were written at the given time, or now if
	// no time is passed.
	RecordWrites(ctx context.Context, owners []domainInfodoc.OwnerId, at *time.Time) *common.ApiError

	// Resolve returns an InfoDoc for each of the given changes, creating or migrating them as needed
	Resolve(ctx context.Context, changes []infodoc.Change) ([]infodoc.InfoDoc, *common.ApiError)

	// Get returns the InfoDoc for the given owner
	Get(ctx context.Context, owner domainInfodoc.OwnerId) (*infodoc.InfoDoc, *common.ApiError)

	// RecordTransitions persists the outcomes of transitions run against a change to the owner doc
	//
	// Never pass a nil here; it's a pointer because the struct isn't small
	RecordTransitions(ctx context.Context, owner domainInfodoc.OwnerId, run *infodoc.TransitionRun) (*infodoc.InfoDoc, *common.ApiError)

	// RecordTransitionsBulk is RecordTransitions for many owner docs at once
	RecordTransitionsBulk(ctx context.Context, runs []infodoc.ChangeTransitionRun) *common.ApiError

	// Delete removes the InfoDoc for the given owner, if there is one
	Delete(ctx context.Context, owner domainInfodoc.OwnerId) *common.ApiError
}

func New(service domainInfodoc.Service) Controller {
	return &impl{
		service: service,
		getNowUtc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type impl struct {
	service   domainInfodoc.Service
	getNowUtc func() time.Time
}

func (c *impl) RecordWrites(ctx context.Context, owners []domainInfodoc.OwnerId, at *time.Time) *common.ApiError {
	var writtenAt time.Time
	if at == nil {
		writtenAt = c.getNowUtc()
	} else {
		writtenAt = *at
	}
	var err error
	if len(owners) == 1 {
		_, err = c.service.RecordWrite(ctx, owners[0], writtenAt)
	} else {
		err = c.service.RecordWrites(ctx, owners, writtenAt)
	}
	if err != nil {
		return handleErr(err)
	} else {
		return nil
	}
}

func (c *impl) Resolve(ctx context.Context, changes []infodoc.Change) ([]infodoc.InfoDoc, *common.ApiError) {
	domainChanges := make([]*domainInfodoc.Change, 0, len(changes))
	for _, change := range changes {
		domainChange := change.ToDomainChange()
		domainChanges = append(domainChanges, &domainChange)
	}
	result, err := c.service.ResolveMany(ctx, domainChanges)
	if err != nil {
		return nil, handleErr(err)
	} else {
		apiDocs := make([]infodoc.InfoDoc, 0, len(result))
		for _, doc := range result {
			apiDocs = append(apiDocs, infodoc.FromDomainInfoDoc(&doc))
		}
		return apiDocs, nil
	}
}

func (c *impl) Get(ctx context.Context, owner domainInfodoc.OwnerId) (*infodoc.InfoDoc, *common.ApiError) {
	result, err := c.service.Get(ctx, owner)
	if err != nil {
		return nil, handleErr(err)
	} else {
		doc := infodoc.FromDomainInfoDoc(result)
		return &doc, nil
	}
}

func (c *impl) RecordTransitions(ctx context.Context, owner domainInfodoc.OwnerId, run *infodoc.TransitionRun) (*infodoc.InfoDoc, *common.ApiError) {
	change := run.ToDomainChange(owner)
	if _, err := c.service.Resolve(ctx, &change); err != nil {
		return nil, handleErr(err)
	}
	stampOutcomes(&change, run.Outcomes)
	if err := c.service.PersistTransitions(ctx, &change); err != nil {
		return nil, handleErr(err)
	}
	doc := infodoc.FromDomainInfoDoc(change.Info)
	return &doc, nil
}

func (c *impl) RecordTransitionsBulk(ctx context.Context, runs []infodoc.ChangeTransitionRun) *common.ApiError {
	// Runs for the same owner doc get folded into the first one, so that they end up in a single write
	changes := make([]*domainInfodoc.Change, 0, len(runs))
	outcomes := make(map[domainInfodoc.OwnerId][]infodoc.Outcome, len(runs))
	for _, r := range runs {
		if _, seen := outcomes[r.ID]; !seen {
			run := r.ToTransitionRun()
			change := run.ToDomainChange(r.ID)
			changes = append(changes, &change)
		}
		outcomes[r.ID] = append(outcomes[r.ID], r.Outcomes...)
	}

	if _, err := c.service.ResolveMany(ctx, changes); err != nil {
		return handleErr(err)
	}
	toUpdate := make([]domainInfodoc.InfoDoc, 0, len(changes))
	for _, change := range changes {
		stampOutcomes(change, outcomes[change.ID])
		toUpdate = append(toUpdate, *change.Info)
	}
	if err := c.service.BulkUpdate(ctx, toUpdate); err != nil {
		return handleErr(err)
	} else {
		return nil
	}
}

func (c *impl) Delete(ctx context.Context, owner domainInfodoc.OwnerId) *common.ApiError {
	if err := c.service.DeleteForOwner(ctx, owner); err != nil {
		return handleErr(err)
	} else {
		return nil
	}
}

func stampOutcomes(change *domainInfodoc.Change, outcomes []infodoc.Outcome) {
	for _, o := range outcomes {
		domainInfodoc.StampOutcome(change, o.Transition, o.Ok)
	}
}

func handleErr(err error) *common.ApiError {
	switch v := err.(type) {
	case domainInfodoc.NotFound:
		return notFound(v)
	case domainInfodoc.InvalidVersion:
		return versionConflict(v)
	case domainInfodoc.RetryExhausted:
		return versionConflict(v)
	case domainInfodoc.InvalidOwnerId:
		return invalidOwnerId(v)
	case domainInfodoc.BulkWriteErrors:
		return bulkWriteErrors(v)
	default:
		return unhandledErr(v)
	}
}

func notFound(notFound domainInfodoc.NotFound) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusNotFound,
		Body: common.Body{
			Message: notFound.Error(),
		},
	}
}

func versionConflict(versionConflict error) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusConflict,
		Body: common.Body{
			Message: versionConflict.Error(),
		},
	}
}

func invalidOwnerId(err domainInfodoc.InvalidOwnerId) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusBadRequest,
		Body: common.Body{
			Message: err.Error(),
		},
	}
}

// Partial failures are reported in full, with the status of whatever stopped the retries, if anything did
func bulkWriteErrors(err domainInfodoc.BulkWriteErrors) *common.ApiError {
	statusCode := http.StatusInternalServerError
	if err.Aborted != nil {
		statusCode = handleErr(err.Aborted).StatusCode
	}
	return &common.ApiError{
		StatusCode: statusCode,
		Body: common.Body{
			Message: err.Error(),
		},
	}
}

func unhandledErr(e error) *common.ApiError {
	return &common.ApiError{
		StatusCode: http.StatusInternalServerError,
		Body: common.Body{
			Message: e.Error(),
		},
	}
}
