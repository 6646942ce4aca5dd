package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"larder/internal/metrics"
)

func newTestEngine(adminToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.Use(LoadAdmin(adminToken))
	return r
}

func TestAdminRequired(t *testing.T) {
	r := newTestEngine("tok")
	r.GET("/admin", AdminRequired(), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no credentials", "", http.StatusForbidden},
		{"wrong token", "Bearer nope", http.StatusForbidden},
		{"not bearer", "tok", http.StatusForbidden},
		{"valid token", "Bearer tok", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusForbidden {
				assert.Contains(t, w.Body.String(), `"FORBIDDEN"`)
			}
		})
	}
}

func TestEmptyAdminTokenNeverMatches(t *testing.T) {
	r := newTestEngine("")
	r.GET("/admin", AdminRequired(), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminSession(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	r := newTestEngine("")
	r.POST("/login", func(c *gin.Context) {
		if !StartAdminSession(c, string(hash), c.PostForm("password")) {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/admin", AdminRequired(), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	login := func(password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password="+password))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, login("wrong").Code)

	w := login("hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartAdminSessionWithoutHash(t *testing.T) {
	r := newTestEngine("")
	var ok bool
	r.GET("/", func(c *gin.Context) { ok = StartAdminSession(c, "", "anything") })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0), 3, 100)
	r := newTestEngine("tok")
	r.POST("/comments", rl.Limit(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	post := func(ip, auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/comments", nil)
		req.RemoteAddr = ip + ":4000"
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, post("203.0.113.7", ""))
	}
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.7", ""))
	// other clients have their own bucket
	assert.Equal(t, http.StatusCreated, post("203.0.113.8", ""))
	// admins are not limited
	assert.Equal(t, http.StatusCreated, post("203.0.113.7", "Bearer tok"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0), 1, 2)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	rl.Allow("b")
	rl.Allow("c")
	// "a" fell out of the LRU and starts with a fresh bucket
	assert.True(t, rl.Allow("a"))
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/related/:type/:slug", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/related/recipes/soup", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/related/:type/:slug", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}
