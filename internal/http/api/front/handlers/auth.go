package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/models"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// currentUserKey stores the authenticated user in the gin context.
const currentUserKey = "current_user"

// CurrentUser returns the authenticated user set by APIKeyAuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

// APIKeyAuthMiddleware resolves the user from a bearer API key.
func APIKeyAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if token == "" || token == strings.TrimSpace(authHeader) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		ctx := c.Request.Context()
		var key models.APIKey
		errFind := db.WithContext(ctx).
			Preload("User").
			Where("key = ? AND revoked = ?", token, false).
			First(&key).Error
		if errFind != nil || key.User == nil || !key.User.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		now := time.Now().UTC()
		if errTouch := db.WithContext(ctx).Model(&models.APIKey{}).
			Where("id = ?", key.ID).
			Update("last_used_at", now).Error; errTouch != nil {
			log.WithError(errTouch).Debug("auth: update last_used_at failed")
		}

		c.Set(currentUserKey, key.User)
		c.Next()
	}
}
