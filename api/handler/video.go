package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tokscrape/models"
)

// Video returns a handler for GET /api/video?url=.
//
// The url must contain domainMarker; otherwise the request is rejected with
// 400 before any browser work happens.
func Video(sc Scraper, domainMarker string) gin.HandlerFunc {
	return func(c *gin.Context) {
		videoURL := strings.TrimSpace(c.Query("url"))
		if videoURL == "" || !strings.Contains(videoURL, domainMarker) {
			c.JSON(http.StatusBadRequest, models.APIResponse{
				Success: false,
				Error:   models.MsgInvalidVideoURL,
			})
			return
		}

		video, err := sc.Video(c.Request.Context(), videoURL)
		if err != nil {
			respondError(c, http.StatusInternalServerError, models.MsgVideoFailed, err)
			return
		}

		c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: video})
	}
}
