package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status serves GET /api/status as a liveness and pool-health probe.
func Status(c *gin.Context) {
	stats, err := credentialPool.Stats()
	if err != nil {
		respondAdminError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"status":      "ok",
			"credentials": stats,
		},
	})
}
