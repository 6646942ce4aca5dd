package handlers

import (
	"net/http"
	"strings"

	"larder/internal/middleware"
	"larder/internal/models"
	"larder/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CommentHandler struct {
	comments *services.CommentService
	logger   *zap.Logger
}

func NewCommentHandler(comments *services.CommentService, logger *zap.Logger) *CommentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentHandler{comments: comments, logger: logger}
}

// submitCommentRequest 评论提交请求
type submitCommentRequest struct {
	PageSlug       string  `json:"page_slug" form:"page_slug" binding:"required,max=200"`
	AuthorName     string  `json:"author_name" form:"author_name" binding:"required,max=80"`
	AuthorEmail    *string `json:"author_email" form:"author_email" binding:"omitempty,max=254"`
	Content        string  `json:"content" form:"content" binding:"required,max=20000"`
	ParentID       *string `json:"parent_id" form:"parent_id"`
	IsAdmin        bool    `json:"is_admin" form:"is_admin"`
	TurnstileToken string  `json:"turnstile_token" form:"cf-turnstile-response"`
}

type updateCommentRequest struct {
	Status  string `json:"status" binding:"required"`
	IsAdmin *bool  `json:"is_admin"`
}

// List 页面已审核评论（树形）
// 读路径永不报错：任何失败都降级为空列表，避免页面渲染中断
func (h *CommentHandler) List(c *gin.Context) {
	noStore(c)

	pageSlug := strings.TrimSpace(c.Query("page_slug"))
	tree, err := h.comments.ApprovedTree(c.Request.Context(), pageSlug)
	if err != nil {
		h.logger.Warn("comment read degraded to empty", zap.String("page_slug", pageSlug), zap.Error(err))
		tree = []*models.CommentNode{}
	}
	if tree == nil {
		tree = []*models.CommentNode{}
	}
	c.JSON(http.StatusOK, tree)
}

// Create 提交评论
func (h *CommentHandler) Create(c *gin.Context) {
	noStore(c)

	var req submitCommentRequest
	if err := c.ShouldBind(&req); err != nil {
		handleServiceError(c, h.logger, bindingError(err))
		return
	}

	if req.IsAdmin && !middleware.IsAdmin(c) {
		abortJSON(c, http.StatusForbidden, CodeForbidden, "Only the site owner can post admin replies", nil)
		return
	}

	comment, err := h.comments.Submit(c.Request.Context(), services.SubmitCommentInput{
		PageSlug:    req.PageSlug,
		AuthorName:  req.AuthorName,
		AuthorEmail: req.AuthorEmail,
		Content:     req.Content,
		ParentID:    req.ParentID,
		IsAdmin:     req.IsAdmin,
		Token:       req.TurnstileToken,
		RemoteIP:    c.ClientIP(),
	})
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"comment": comment,
		"message": services.SubmissionMessage(comment),
	})
}

// Update 修改评论状态（管理员）
func (h *CommentHandler) Update(c *gin.Context) {
	noStore(c)

	var req updateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, h.logger, bindingError(err))
		return
	}

	comment, err := h.comments.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.IsAdmin)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// Delete 删除评论（管理员）
func (h *CommentHandler) Delete(c *gin.Context) {
	noStore(c)

	if err := h.comments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminList 后台评论列表 + 各状态计数
func (h *CommentHandler) AdminList(c *gin.Context) {
	noStore(c)

	filter := services.CommentFilter{PageSlug: strings.TrimSpace(c.Query("page_slug"))}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseCommentStatus(raw)
		if err != nil {
			badRequest(c, "status must be one of pending, approved, spam")
			return
		}
		filter.Status = status
	}

	list, err := h.comments.ListForAdmin(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
