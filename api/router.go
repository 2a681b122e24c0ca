package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tokscrape/api/handler"
	"github.com/use-agent/tokscrape/api/middleware"
	"github.com/use-agent/tokscrape/config"
)

// Banner is the plain-text body of GET /.
const Banner = "TikTok Scraper API"

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS → RequestID
func NewRouter(sc handler.Scraper, sp handler.StatsProvider, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestID())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Banner)
	})

	api := r.Group("/api")
	api.GET("/health", handler.Health(sp, startTime))
	api.GET("/profile/:username", handler.Profile(sc))
	api.GET("/video", handler.Video(sc, cfg.Site.DomainMarker))

	return r
}
