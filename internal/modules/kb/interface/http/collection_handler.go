package http

import (
	"strconv"
	"strings"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/service"
	"SemHub/pkg/back"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type CollectionHandler struct {
	collectionSvc service.CollectionService
}

func NewCollectionHandler(svc service.CollectionService) *CollectionHandler {
	return &CollectionHandler{collectionSvc: svc}
}

func (h *CollectionHandler) Create(c *gin.Context) {
	var req request.CreateCollectionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.collectionSvc.Create(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *CollectionHandler) List(c *gin.Context) {
	ownerID := strings.TrimSpace(c.Query("owner_id"))
	data, err := h.collectionSvc.List(c.Request.Context(), ownerID)
	back.Result(c, data, err)
}

func (h *CollectionHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("collection_id"), 10, 64)
	if err != nil || id <= 0 {
		back.Error(c, xerr.BadRequest, "invalid collection_id")
		return
	}
	data, err := h.collectionSvc.Get(c.Request.Context(), id)
	back.Result(c, data, err)
}

func (h *CollectionHandler) SetStatus(c *gin.Context) {
	var req request.UpdateCollectionStatusRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	err := h.collectionSvc.SetStatus(c.Request.Context(), req)
	back.Result(c, nil, err)
}

func (h *CollectionHandler) Delete(c *gin.Context) {
	var req request.DeleteCollectionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	err := h.collectionSvc.Delete(c.Request.Context(), req)
	back.Result(c, nil, err)
}
