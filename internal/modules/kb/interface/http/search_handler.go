package http

import (
	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/dto/respond"
	"SemHub/internal/modules/kb/application/service"
	"SemHub/pkg/back"
	"SemHub/pkg/xerr"
	"SemHub/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	searchSvc service.SearchService
}

func NewSearchHandler(svc service.SearchService) *SearchHandler {
	return &SearchHandler{searchSvc: svc}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req request.SearchRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.searchSvc.Search(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *SearchHandler) CacheStats(c *gin.Context) {
	stats := h.searchSvc.CacheStats()
	back.Success(c, respond.CacheStatsRespond{
		Hits:      stats.Hits,
		Misses:    stats.Misses,
		Evictions: stats.Evictions,
		HitRate:   stats.HitRate,
	})
}
