package handlers

import (
	"net/http"
	"os"

	"larder/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Render helper to inject common variables like the admin flag
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}

	obj["IsAdmin"] = middleware.IsAdmin(c)
	obj["CurrentPath"] = c.Request.URL.Path
	obj["TurnstileSiteKey"] = os.Getenv("TURNSTILE_SITE_KEY")

	c.HTML(code, name, obj)
}

// Error helper
func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message, "Status": code})
}

// errorBody is the JSON error envelope: {"error": {"code", "message", ...}}
func errorBody(code, message string, extra gin.H) gin.H {
	body := gin.H{"code": code, "message": message}
	for k, v := range extra {
		body[k] = v
	}
	return gin.H{"error": body}
}

func abortJSON(c *gin.Context, status int, code, message string, extra gin.H) {
	c.AbortWithStatusJSON(status, errorBody(code, message, extra))
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
}

func badRequest(c *gin.Context, message string) {
	abortJSON(c, http.StatusBadRequest, CodeValidation, message, nil)
}
