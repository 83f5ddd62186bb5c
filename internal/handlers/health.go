package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/pkg/response"
)

// Health returns a simple status payload useful for readiness checks.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK

		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		response.Success(c, code, gin.H{"status": status})
	}
}
