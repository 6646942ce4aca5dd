package router

import (
	"net/http"

	"larder/internal/handlers"
	"larder/internal/metrics"
	"larder/internal/middleware"
	"larder/internal/models"
	"larder/internal/services"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Deps 路由所需的服务
type Deps struct {
	Content    services.ContentSource
	Relevance  *services.RelevanceEngine
	Comments   *services.CommentService
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
	AdminToken string
	// AdminPasswordHash overrides ADMIN_PASSWORD_HASH when set.
	AdminPasswordHash string
	// SubmitLimiter defaults to 5 submissions per minute per IP, burst 3.
	SubmitLimiter *middleware.RateLimiter
}

// DefaultSubmitLimiter 每个 IP 每分钟 5 条，突发 3 条
func DefaultSubmitLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(rate.Limit(5.0/60.0), 3, 10000)
}

// RegisterRoutes expects the session middleware to be installed already.
func RegisterRoutes(r *gin.Engine, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := d.SubmitLimiter
	if limiter == nil {
		limiter = DefaultSubmitLimiter()
	}

	r.Use(middleware.Metrics(d.Metrics))
	r.Use(middleware.LoadAdmin(d.AdminToken))

	// Handlers
	commentHandler := handlers.NewCommentHandler(d.Comments, logger)
	relatedHandler := handlers.NewRelatedHandler(d.Relevance)
	pageHandler := handlers.NewPageHandler(d.Content, d.Relevance, d.Comments, logger)
	adminHandler := handlers.NewAdminHandler(logger)
	if d.AdminPasswordHash != "" {
		adminHandler = handlers.NewAdminHandlerWith(d.AdminPasswordHash, logger)
	}

	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// 内容页面 (Content Pages)
	pages := r.Group("/", gzip.Gzip(gzip.DefaultCompression))
	for _, contentType := range []string{models.ContentTypeRecipe, models.ContentTypeArticle, models.ContentTypeGuide} {
		pages.GET("/"+contentType+"/:slug", pageHandler.Show(contentType))
	}

	api := r.Group("/api")
	{
		api.GET("/related/:type/:slug", relatedHandler.Related) // 相关内容
		api.GET("/pillars/:slug", relatedHandler.Pillars)       // 相关专题指南

		api.GET("/comments", commentHandler.List)                      // 页面评论（已审核）
		api.POST("/comments", limiter.Limit(), commentHandler.Create) // 提交评论
	}

	// 管理路由 (Admin Routes)
	r.POST("/admin/session", adminHandler.Login)
	r.DELETE("/admin/session", adminHandler.Logout)

	admin := r.Group("/api")
	admin.Use(middleware.AdminRequired())
	{
		admin.PATCH("/comments/:id", commentHandler.Update)  // 修改评论状态
		admin.DELETE("/comments/:id", commentHandler.Delete) // 删除评论
		admin.GET("/admin/comments", commentHandler.AdminList)
	}
}
