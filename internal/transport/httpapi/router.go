package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// RouterConfig настраивает gin engine.
type RouterConfig struct {
	// StaticDir — каталог с index.html и ассетами. Пустая строка отключает статику.
	StaticDir string
	Metrics   *metrics.HTTPMetrics
	Logger    *log.Entry
}

// NewRouter собирает gin engine: middleware, /api, статику и JSON 404.
func NewRouter(handler *Handler, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
	}
	// Recovery идёт последним: логгер и метрики видят итоговый 500.
	r.Use(Recovery(logger))

	handler.RegisterRoutes(r)

	static := staticFiles{dir: cfg.StaticDir}
	if static.enabled() {
		r.GET("/", static.index)
		r.Static("/static", cfg.StaticDir)
	}
	r.NoRoute(static.fallback)

	return r
}

type staticFiles struct {
	dir string
}

func (s staticFiles) enabled() bool {
	return s.dir != ""
}

func (s staticFiles) index(c *gin.Context) {
	s.serve(c, "/index.html")
}

// fallback отдаёт файлы каталога по корневым путям (/app.js),
// остальное получает JSON 404.
func (s staticFiles) fallback(c *gin.Context) {
	method := c.Request.Method
	if s.enabled() && (method == http.MethodGet || method == http.MethodHead) {
		s.serve(c, c.Request.URL.Path)
		return
	}
	notFound(c)
}

func (s staticFiles) serve(c *gin.Context, urlPath string) {
	// path.Clean от корня убирает ".." и не выпускает за пределы каталога.
	name := filepath.Join(s.dir, filepath.FromSlash(path.Clean("/"+urlPath)))
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		notFound(c)
		return
	}
	c.File(name)
}

func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Success: false, Message: "not found"})
}
