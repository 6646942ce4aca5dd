package handlers

import (
	"net/http"
	"strconv"

	"larder/internal/models"
	"larder/internal/services"

	"github.com/gin-gonic/gin"
)

type RelatedHandler struct {
	engine *services.RelevanceEngine
}

func NewRelatedHandler(engine *services.RelevanceEngine) *RelatedHandler {
	return &RelatedHandler{engine: engine}
}

// queryLimit 解析 limit 参数；非法或缺省时返回 0，由引擎使用默认值
func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	if n > 24 {
		return 24
	}
	return n
}

// Related 相关内容
func (h *RelatedHandler) Related(c *gin.Context) {
	results := h.engine.Rank(c.Request.Context(), c.Param("type"), c.Param("slug"), queryLimit(c))
	if results == nil {
		results = []models.ContentRecord{}
	}
	c.JSON(http.StatusOK, results)
}

// Pillars 相关专题指南
func (h *RelatedHandler) Pillars(c *gin.Context) {
	results := h.engine.RankPillars(c.Request.Context(), c.Param("slug"), queryLimit(c))
	if results == nil {
		results = []models.PillarRecord{}
	}
	c.JSON(http.StatusOK, results)
}
