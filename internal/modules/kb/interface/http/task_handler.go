package http

import (
	"strconv"

	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/dto/respond"
	"SemHub/internal/modules/kb/application/service"
	"SemHub/pkg/back"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	orchestrator *service.TaskOrchestrator
}

func NewTaskHandler(o *service.TaskOrchestrator) *TaskHandler {
	return &TaskHandler{orchestrator: o}
}

func (h *TaskHandler) Status(c *gin.Context) {
	var req request.TaskStatusRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	rec, ok := h.orchestrator.Status(req.CollectionID, req.DocumentID)
	if !ok {
		back.Error(c, xerr.NotFound, "no task record for document")
		return
	}
	back.Success(c, taskToRespond(rec))
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	collectionID, _ := strconv.ParseInt(c.Query("collection_id"), 10, 64)
	activeOnly := c.Query("active") == "true"
	recs := h.orchestrator.ListTasks(collectionID, activeOnly)
	out := make([]respond.TaskRespond, 0, len(recs))
	for _, rec := range recs {
		out = append(out, taskToRespond(rec))
	}
	back.Success(c, out)
}

func taskToRespond(rec service.TaskRecord) respond.TaskRespond {
	out := respond.TaskRespond{
		TaskID:       rec.TaskID,
		CollectionID: rec.CollectionID,
		DocumentID:   rec.DocumentID,
		DocumentUuid: rec.DocumentUuid,
		State:        string(rec.State),
		SubmittedAt:  rec.SubmittedAt.Unix(),
		LastError:    rec.LastError,
		ChunkCount:   rec.ChunkCount,
		DurationMs:   rec.DurationMs,
	}
	if !rec.StartedAt.IsZero() {
		out.StartedAt = rec.StartedAt.Unix()
	}
	if !rec.FinishedAt.IsZero() {
		out.FinishedAt = rec.FinishedAt.Unix()
	}
	return out
}
