package http

import (
	"io"
	"strconv"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/service"
	"SemHub/pkg/back"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// 单文件上传上限，超过直接拒绝
const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	documentSvc service.DocumentService
}

func NewDocumentHandler(svc service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentSvc: svc}
}

func (h *DocumentHandler) Submit(c *gin.Context) {
	var req request.SubmitDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.documentSvc.Submit(c.Request.Context(), req)
	back.Result(c, data, err)
}

// Upload multipart 文件上传：form 字段 collection_id + file
func (h *DocumentHandler) Upload(c *gin.Context) {
	collectionID, err := strconv.ParseInt(c.PostForm("collection_id"), 10, 64)
	if err != nil || collectionID <= 0 {
		back.Error(c, xerr.BadRequest, "invalid collection_id")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		back.Error(c, xerr.BadRequest, "missing file")
		return
	}
	if fh.Size > maxUploadBytes {
		back.Error(c, xerr.BadRequest, "file too large")
		return
	}
	f, err := fh.Open()
	if err != nil {
		back.Error(c, xerr.InternalServerError, "open upload failed")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		back.Error(c, xerr.InternalServerError, "read upload failed")
		return
	}

	data, err := h.documentSvc.Upload(c.Request.Context(), collectionID, fh.Filename, content)
	back.Result(c, data, err)
}

func (h *DocumentHandler) List(c *gin.Context) {
	collectionID, err := strconv.ParseInt(c.Query("collection_id"), 10, 64)
	if err != nil || collectionID <= 0 {
		back.Error(c, xerr.BadRequest, "invalid collection_id")
		return
	}
	data, err := h.documentSvc.List(c.Request.Context(), collectionID)
	back.Result(c, data, err)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("document_id"), 10, 64)
	if err != nil || id <= 0 {
		back.Error(c, xerr.BadRequest, "invalid document_id")
		return
	}
	data, err := h.documentSvc.Get(c.Request.Context(), id)
	back.Result(c, data, err)
}

func (h *DocumentHandler) Sync(c *gin.Context) {
	var req request.SyncCollectionRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.documentSvc.Sync(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	var req request.DeleteDocumentRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	err := h.documentSvc.Delete(c.Request.Context(), req)
	back.Result(c, nil, err)
}
