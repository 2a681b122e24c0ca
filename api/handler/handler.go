package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tokscrape/models"
)

// Scraper is the extraction surface the handlers depend on.
type Scraper interface {
	Profile(ctx context.Context, username string) (*models.Profile, error)
	Video(ctx context.Context, videoURL string) (*models.Video, error)
}

// respondError logs the classified error and writes the single user-facing
// message for it. Internal error detail never reaches the client.
func respondError(c *gin.Context, status int, msg string, err error) {
	slog.Warn("request failed",
		"path", c.FullPath(),
		"code", models.CodeOf(err),
		"request_id", c.GetString("request_id"),
		"error", err,
	)
	c.JSON(status, models.APIResponse{Success: false, Error: msg})
}
