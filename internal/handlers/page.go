package handlers

import (
	"net/http"

	"larder/internal/models"
	"larder/internal/services"
	"larder/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PageHandler renders a content page: body, related content and the approved comment tree.
type PageHandler struct {
	content  services.ContentSource
	engine   *services.RelevanceEngine
	comments *services.CommentService
	logger   *zap.Logger
}

func NewPageHandler(content services.ContentSource, engine *services.RelevanceEngine, comments *services.CommentService, logger *zap.Logger) *PageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{content: content, engine: engine, comments: comments, logger: logger}
}

// Show returns the handler for one content type, e.g. GET /recipes/:slug.
func (h *PageHandler) Show(contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if contentType == models.ContentTypeGuide {
			h.showGuide(c)
			return
		}

		ctx := c.Request.Context()
		slug := c.Param("slug")
		record, err := h.content.GetRecord(ctx, contentType, slug)
		if err != nil {
			h.logger.Error("load content page", zap.String("type", contentType), zap.String("slug", slug), zap.Error(err))
			RenderError(c, http.StatusInternalServerError, "This page could not be loaded.")
			return
		}
		if record == nil {
			RenderError(c, http.StatusNotFound, "Page not found")
			return
		}

		pageSlug := contentType + "/" + record.Slug
		Render(c, http.StatusOK, "content/detail.html", gin.H{
			"Title":       record.Title,
			"Description": record.Description,
			"Record":      record,
			"Body":        utils.RenderMarkdown(record.Body),
			"Related":     h.engine.Rank(ctx, contentType, record.Slug, 0),
			"Guides":      h.engine.PillarsForCategory(ctx, record.Category, 0),
			"PageSlug":    pageSlug,
			"Comments":    h.commentTree(c, pageSlug),
		})
	}
}

func (h *PageHandler) showGuide(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")
	pillars, err := h.content.ListPillars(ctx)
	if err != nil {
		h.logger.Error("load guide page", zap.String("slug", slug), zap.Error(err))
		RenderError(c, http.StatusInternalServerError, "This page could not be loaded.")
		return
	}

	var guide *models.PillarRecord
	for i := range pillars {
		if pillars[i].Slug == slug {
			guide = &pillars[i]
			break
		}
	}
	if guide == nil {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}

	pageSlug := models.ContentTypeGuide + "/" + guide.Slug
	Render(c, http.StatusOK, "content/detail.html", gin.H{
		"Title":       guide.Title,
		"Description": guide.Description,
		"Guide":       guide,
		"Body":        utils.RenderMarkdown(guide.Body),
		"Guides":      h.engine.RankPillars(ctx, guide.Slug, 0),
		"PageSlug":    pageSlug,
		"Comments":    h.commentTree(c, pageSlug),
	})
}

// commentTree 评论读取失败时静默降级为空
func (h *PageHandler) commentTree(c *gin.Context, pageSlug string) []*models.CommentNode {
	tree, err := h.comments.ApprovedTree(c.Request.Context(), pageSlug)
	if err != nil {
		h.logger.Warn("comments unavailable for page", zap.String("page_slug", pageSlug), zap.Error(err))
		return nil
	}
	return tree
}
