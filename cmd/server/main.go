package main

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"larder/internal/db"
	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/repository"
	"larder/internal/router"
	"larder/internal/services"
	"larder/internal/utils"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Initialize Database
	gdb := db.Init(logger)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services
	content := services.NewFileContentStore(os.Getenv("CONTENT_DIR"), logger)
	fallback, _ := strconv.ParseBool(os.Getenv("RELEVANCE_TOPIC_CONTAINS_FALLBACK"))
	engine := services.NewRelevanceEngine(content, logger,
		services.WithTopicContainsFallback(fallback),
		services.WithRelevanceMetrics(m),
	)
	comments := services.NewCommentService(
		repository.NewCommentRepository(gdb),
		services.NewTurnstileVerifier(logger),
		services.NewMailService(logger),
		m,
		logger,
	)

	// Initialize Gin
	r := gin.Default()

	// Setup Sessions
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		logger.Warn("SESSION_SECRET not set, using an insecure default")
		secret = "secret_key_change_me"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("larder_session", store))

	// Load Templates using Multitemplate to avoid collision and allow handler names
	r.HTMLRender = loadTemplates("./web/templates")

	// Static Assets
	r.Static("/static", "./web/static")

	router.RegisterRoutes(r, router.Deps{
		Content:    content,
		Relevance:  engine,
		Comments:   comments,
		Metrics:    m,
		Gatherer:   reg,
		Logger:     logger,
		AdminToken: os.Getenv("ADMIN_API_TOKEN"),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("larder server starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("GIN_MODE") == gin.ReleaseMode {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func loadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}

	components, err := filepath.Glob(templatesDir + "/components/*.html")
	if err != nil {
		panic(err)
	}

	// Helper to assemble files: layouts + components + view
	assemble := func(view string) []string {
		files := make([]string, 0, len(layouts)+len(components)+1)
		files = append(files, layouts...)
		files = append(files, components...)
		files = append(files, view)
		return files
	}

	// FuncMap
	funcMap := template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"commentHTML": func(c models.Comment) template.HTML {
			return utils.RenderCommentMarkdown(c.Content)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2 January 2006")
		},
		"stripHTML": utils.StripHTML,
	}

	r.AddFromFilesFuncs("content/detail.html", funcMap, assemble(templatesDir+"/views/content/detail.html")...)
	r.AddFromFilesFuncs("error.html", funcMap, assemble(templatesDir+"/views/error.html")...)

	return r
}
