package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const AdminKey = "is_admin"

const sessionAdminKey = "admin"

// LoadAdmin marks the request as privileged when the session carries the admin
// flag, or when a bearer token matches the configured admin token.
func LoadAdmin(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin := false
		session := sessions.Default(c)
		if v, ok := session.Get(sessionAdminKey).(bool); ok && v {
			isAdmin = true
		}
		if !isAdmin && adminToken != "" {
			if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				isAdmin = subtle.ConstantTimeCompare([]byte(bearer), []byte(adminToken)) == 1
			}
		}
		c.Set(AdminKey, isAdmin)
		c.Next()
	}
}

// IsAdmin reports what LoadAdmin decided for this request.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(AdminKey)
}

// AdminRequired rejects non-admin requests with a JSON 403.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "FORBIDDEN", "message": "Administrator access required"},
			})
			return
		}
		c.Next()
	}
}

// StartAdminSession checks password against the bcrypt hash and, on success,
// stores the admin flag in the cookie session.
func StartAdminSession(c *gin.Context, passwordHash, password string) bool {
	if passwordHash == "" || password == "" {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		return false
	}
	session := sessions.Default(c)
	session.Set(sessionAdminKey, true)
	return session.Save() == nil
}

func EndAdminSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(sessionAdminKey)
	_ = session.Save()
}
