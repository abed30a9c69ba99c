package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/models"
)

const (
	ModeHeader = "X-Dashboard-Mode"
	ModeCookie = "dashboard_mode"
)

// ModeMiddleware reads the demo/live signal once per request: header, then cookie, then DEMO_MODE.
func ModeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(models.WithMode(c.Request.Context(), requestMode(c)))
		c.Next()
	}
}

func requestMode(c *gin.Context) models.Mode {
	if m, ok := models.ParseMode(c.GetHeader(ModeHeader)); ok {
		return m
	}
	if v, err := c.Cookie(ModeCookie); err == nil {
		if m, ok := models.ParseMode(v); ok {
			return m
		}
	}
	if config.DemoModeDefault() {
		return models.ModeDemo
	}
	return models.ModeLive
}
