package front

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/gate"
	handlers "github.com/registryhub/registryd/internal/http/api/front/handlers"
	"github.com/registryhub/registryd/internal/ratelimit"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers the public registry API.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, limiter *ratelimit.Limiter, gateManager *gate.Manager) {
	if r == nil || db == nil || limiter == nil {
		return
	}

	api := r.Group("/api/v1")
	api.Use(handlers.APIKeyAuthMiddleware(db))
	api.Use(gateMiddleware(gateManager))

	publishHandler := handlers.NewPublishHandler(db, limiter)
	api.PUT("/crates/:name/:version/publish", publishHandler.Publish)
}

// gateMiddleware applies the per-second request gate keyed by user.
func gateMiddleware(gateManager *gate.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gateManager == nil {
			c.Next()
			return
		}
		user, ok := handlers.CurrentUser(c)
		if !ok {
			c.Next()
			return
		}
		result, errAllow := gateManager.Allow(c.Request.Context(), "u:"+strconv.FormatUint(user.ID, 10))
		if errAllow != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !result.Allowed {
			seconds := int64(time.Until(result.Reset).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
