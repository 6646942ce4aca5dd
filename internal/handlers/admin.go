package handlers

import (
	"net/http"
	"os"

	"larder/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	passwordHash string
	logger       *zap.Logger
}

// NewAdminHandler reads the bcrypt hash of the admin password from ADMIN_PASSWORD_HASH.
func NewAdminHandler(logger *zap.Logger) *AdminHandler {
	return NewAdminHandlerWith(os.Getenv("ADMIN_PASSWORD_HASH"), logger)
}

func NewAdminHandlerWith(passwordHash string, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{passwordHash: passwordHash, logger: logger}
}

type loginRequest struct {
	Password string `json:"password" form:"password" binding:"required"`
}

// Login 管理员登录，换取会话 cookie
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "password is required")
		return
	}

	if !middleware.StartAdminSession(c, h.passwordHash, req.Password) {
		h.logger.Warn("admin login refused", zap.String("ip", c.ClientIP()))
		abortJSON(c, http.StatusForbidden, CodeForbidden, "Wrong password", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": true})
}

// Logout 退出管理员会话
func (h *AdminHandler) Logout(c *gin.Context) {
	middleware.EndAdminSession(c)
	c.Status(http.StatusNoContent)
}
