package infodocs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infodocController "github.com/lloydmeta/infodocs/internal/api/controllers/infodoc"
	"github.com/lloydmeta/infodocs/internal/api/models/common"
	"github.com/lloydmeta/infodocs/internal/api/models/infodoc"
	domainInfodoc "github.com/lloydmeta/infodocs/internal/domain/infodoc"
	"github.com/lloydmeta/infodocs/internal/infra/server/routing"
)

var subPath = "infodocs"

var ownerIdKey = "owner_id"

type RoutesHandler struct {
	Controller infodocController.Controller
}

func (h *RoutesHandler) RegisterRoutes(routerGroup *gin.RouterGroup) {
	subGroup := routerGroup.Group(subPath)
	subGroup.POST("/writes", h.recordWrites)
	subGroup.POST("/resolutions", h.resolve)
	subGroup.POST("/transitions", h.recordTransitionsBulk)
	subGroup.GET("/:"+ownerIdKey, h.get)
	subGroup.PUT("/:"+ownerIdKey+"/transitions", h.recordTransitions)
	subGroup.DELETE("/:"+ownerIdKey, h.delete)
}

// @Summary Record writes
// @ID record-writes
// @Tags infodocs
// @Description Records that owner docs were replicated, creating their info docs if needed
// @Accept  json
// @Produce  json
// @Param   writes body infodoc.RecordWrites true "The request body"
// @Success 204
// @Failure 400 {object} common.Body "Invalid JSON"
// @Failure 409 {object} common.Body "Gave up after too many conflicting writes"
// @Router /infodocs/writes [post]
func (h *RoutesHandler) recordWrites(c *gin.Context) {
	var writes infodoc.RecordWrites
	if err := c.ShouldBindJSON(&writes); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if err := h.Controller.RecordWrites(c.Request.Context(), writes.OwnerIds, writes.At); err == nil {
			c.Status(http.StatusNoContent)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

// @Summary Resolve info docs
// @ID resolve-infodocs
// @Tags infodocs
// @Description Returns info docs for a batch of changes, creating or migrating them as needed
// @Accept  json
// @Produce  json
// @Param   resolutions body infodoc.Resolutions true "The request body"
// @Success 200 {array} infodoc.InfoDoc
// @Failure 400 {object} common.Body "Invalid JSON"
// @Router /infodocs/resolutions [post]
func (h *RoutesHandler) resolve(c *gin.Context) {
	var resolutions infodoc.Resolutions
	if err := c.ShouldBindJSON(&resolutions); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if docs, err := h.Controller.Resolve(c.Request.Context(), resolutions.Changes); err == nil {
			c.JSON(http.StatusOK, docs)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

// @Summary Get an info doc
// @ID get-infodoc
// @Tags infodocs
// @Description Retrieves the info doc for an owner doc
// @Accept  json
// @Produce  json
// @Param   owner_id path string true "The id of the owner doc"
// @Success 200 {object} infodoc.InfoDoc
// @Failure 404 {object} common.Body "Info doc does not exist"
// @Router /infodocs/{owner_id} [get]
func (h *RoutesHandler) get(c *gin.Context) {
	if owner, err := ownerIdParam(c); err != nil {
		routing.HandleApiErr(c, err)
	} else {
		if doc, err := h.Controller.Get(c.Request.Context(), *owner); err == nil {
			c.JSON(http.StatusOK, doc)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

// @Summary Record transitions
// @ID record-transitions
// @Tags infodocs
// @Description Persists the outcomes of transitions run against a change to an owner doc
// @Accept  json
// @Produce  json
// @Param   owner_id path string true "The id of the owner doc"
// @Param   run body infodoc.TransitionRun true "The request body"
// @Success 200 {object} infodoc.InfoDoc
// @Failure 400 {object} common.Body "Invalid JSON"
// @Failure 409 {object} common.Body "Gave up after too many conflicting writes"
// @Router /infodocs/{owner_id}/transitions [put]
func (h *RoutesHandler) recordTransitions(c *gin.Context) {
	if owner, err := ownerIdParam(c); err != nil {
		routing.HandleApiErr(c, err)
	} else {
		var run infodoc.TransitionRun
		if err := c.ShouldBindJSON(&run); err != nil {
			routing.HandleJsonSerdesErr(c, err)
		} else {
			if doc, err := h.Controller.RecordTransitions(c.Request.Context(), *owner, &run); err == nil {
				c.JSON(http.StatusOK, doc)
			} else {
				routing.HandleApiErr(c, err)
			}
		}
	}
}

// @Summary Record transitions in bulk
// @ID record-transitions-bulk
// @Tags infodocs
// @Description Persists the outcomes of transitions run against many changes in one go
// @Accept  json
// @Produce  json
// @Param   runs body infodoc.TransitionRuns true "The request body"
// @Success 204
// @Failure 400 {object} common.Body "Invalid JSON"
// @Router /infodocs/transitions [post]
func (h *RoutesHandler) recordTransitionsBulk(c *gin.Context) {
	var runs infodoc.TransitionRuns
	if err := c.ShouldBindJSON(&runs); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if err := h.Controller.RecordTransitionsBulk(c.Request.Context(), runs.Changes); err == nil {
			c.Status(http.StatusNoContent)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

// @Summary Delete an info doc
// @ID delete-infodoc
// @Tags infodocs
// @Description Deletes the info doc for an owner doc, if there is one
// @Accept  json
// @Produce  json
// @Param   owner_id path string true "The id of the owner doc"
// @Success 204
// @Failure 409 {object} common.Body "Gave up after too many conflicting writes"
// @Router /infodocs/{owner_id} [delete]
func (h *RoutesHandler) delete(c *gin.Context) {
	if owner, err := ownerIdParam(c); err != nil {
		routing.HandleApiErr(c, err)
	} else {
		if err := h.Controller.Delete(c.Request.Context(), *owner); err == nil {
			c.Status(http.StatusNoContent)
		} else {
			routing.HandleApiErr(c, err)
		}
	}
}

func ownerIdParam(c *gin.Context) (*domainInfodoc.OwnerId, *common.ApiError) {
	owner, err := domainInfodoc.OwnerIdFromString(c.Param(ownerIdKey))
	if err != nil {
		return nil, &common.ApiError{
			StatusCode: http.StatusBadRequest,
			Body: common.Body{
				Message: err.Error(),
			},
		}
	} else {
		return owner, nil
	}
}
