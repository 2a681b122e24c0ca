package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tokscrape/models"
)

// Profile returns a handler for GET /api/profile/:username.
//
// A missing account and every other failure both answer 500; only the
// message differs.
func Profile(sc Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := sc.Profile(c.Request.Context(), c.Param("username"))
		if err != nil {
			msg := models.MsgProfileFailed
			if models.IsNotFound(err) {
				msg = models.MsgAccountNotFound
			}
			respondError(c, http.StatusInternalServerError, msg, err)
			return
		}

		c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: profile})
	}
}
