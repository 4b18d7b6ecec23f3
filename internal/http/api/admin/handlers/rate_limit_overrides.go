package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/models"
	"github.com/registryhub/registryd/internal/ratelimit"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimitOverrideHandler handles admin publish-rate override endpoints.
type RateLimitOverrideHandler struct {
	db *gorm.DB
}

// NewRateLimitOverrideHandler constructs a RateLimitOverrideHandler.
func NewRateLimitOverrideHandler(db *gorm.DB) *RateLimitOverrideHandler {
	return &RateLimitOverrideHandler{db: db}
}

// overrideUpsertRequest defines the create/update payload.
type overrideUpsertRequest struct {
	UserID    uint64 `json:"user_id" binding:"required"`
	Action    int16  `json:"action"`
	Burst     int64  `json:"burst"`
	ExpiresAt string `json:"expires_at"` // RFC3339, empty means never expires.
}

// overrideListQuery defines filters for the override list view.
type overrideListQuery struct {
	Page   int    `form:"page,default=1"`   // Page number.
	Limit  int    `form:"limit,default=12"` // Page size.
	UserID uint64 `form:"user_id"`          // Optional user filter.
}

// Upsert creates or replaces the override for a (user, action) pair.
func (h *RateLimitOverrideHandler) Upsert(c *gin.Context) {
	var req overrideUpsertRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	action := ratelimit.Action(req.Action)
	if !action.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	if req.Burst < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "burst must be non-negative"})
		return
	}

	record := models.PublishRateOverride{
		UserID: req.UserID,
		Action: req.Action,
		Burst:  req.Burst,
	}
	if req.ExpiresAt != "" {
		expiresAt, errParse := time.Parse(time.RFC3339, req.ExpiresAt)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_at"})
			return
		}
		micros := expiresAt.UnixMicro()
		record.ExpiresAt = &micros
	}

	errUpsert := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "action"}},
		DoUpdates: clause.AssignmentColumns([]string{"burst", "expires_at"}),
	}).Create(&record).Error
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save override failed"})
		return
	}

	c.JSON(http.StatusOK, overrideResponse(record))
}

// List returns overrides with paging and an optional user filter.
func (h *RateLimitOverrideHandler) List(c *gin.Context) {
	var q overrideListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 12
	}

	base := h.db.WithContext(c.Request.Context()).Model(&models.PublishRateOverride{})
	if q.UserID > 0 {
		base = base.Where("user_id = ?", q.UserID)
	}

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count overrides failed"})
		return
	}

	var rows []models.PublishRateOverride
	if errFind := base.
		Order("user_id ASC, action ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list overrides failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, overrideResponse(row))
	}
	c.JSON(http.StatusOK, gin.H{"overrides": out, "total": total})
}

// Delete removes the override for a (user, action) pair.
func (h *RateLimitOverrideHandler) Delete(c *gin.Context) {
	userID, errUser := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if errUser != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	actionRaw, errAction := strconv.ParseInt(c.Param("action"), 10, 16)
	if errAction != nil || !ratelimit.Action(actionRaw).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND action = ?", userID, int16(actionRaw)).
		Delete(&models.PublishRateOverride{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete override failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "override not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func overrideResponse(row models.PublishRateOverride) gin.H {
	out := gin.H{
		"user_id": row.UserID,
		"action":  row.Action,
		"burst":   row.Burst,
	}
	if expiresAt := row.ExpiresAtTime(); expiresAt != nil {
		out["expires_at"] = expiresAt.Format(time.RFC3339)
	} else {
		out["expires_at"] = nil
	}
	return out
}
