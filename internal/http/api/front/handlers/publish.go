package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/models"
	"github.com/registryhub/registryd/internal/ratelimit"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// PublishHandler handles crate version publishing.
type PublishHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
}

// NewPublishHandler constructs a PublishHandler.
func NewPublishHandler(db *gorm.DB, limiter *ratelimit.Limiter) *PublishHandler {
	return &PublishHandler{db: db, limiter: limiter}
}

// Publish records a new crate version for the authenticated user. The
// persisted rate limiter runs before any registry mutation; a denied check
// maps to 429 with a Retry-After hint.
func (h *PublishHandler) Publish(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	name := strings.TrimSpace(c.Param("name"))
	version := strings.TrimSpace(c.Param("version"))
	if name == "" || version == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing crate name or version"})
		return
	}

	ctx := c.Request.Context()
	errCheck := h.limiter.Check(ctx, user.ID, ratelimit.ActionPublishNew, time.Now().UTC())
	var limited *ratelimit.RateLimitedError
	if errors.As(errCheck, &limited) {
		retryAfter := limited.RetryAfter.UTC()
		seconds := int64(time.Until(retryAfter).Seconds())
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many publish requests",
			"retry_after": retryAfter.Format(time.RFC3339),
		})
		return
	}
	if errCheck != nil {
		log.WithError(errCheck).Error("publish: rate limit check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var created models.CrateVersion
	errPublish := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var crate models.Crate
		errFind := tx.Where("name = ?", name).First(&crate).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			crate = models.Crate{Name: name, OwnerID: user.ID}
			if errCreate := tx.Create(&crate).Error; errCreate != nil {
				return errCreate
			}
		case errFind != nil:
			return errFind
		case crate.OwnerID != user.ID:
			return errNotOwner
		}

		created = models.CrateVersion{CrateID: crate.ID, Num: version, PublishedBy: user.ID}
		return tx.Create(&created).Error
	})
	switch {
	case errors.Is(errPublish, errNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "crate owned by another user"})
		return
	case errors.Is(errPublish, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusConflict, gin.H{"error": "version already published"})
		return
	case errPublish != nil:
		log.WithError(errPublish).Error("publish: persist version failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"crate": name, "version": version, "id": created.ID})
}

var errNotOwner = errors.New("crate owned by another user")
