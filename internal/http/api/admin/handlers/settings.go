package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/models"
	internalsettings "github.com/registryhub/registryd/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingHandler handles admin settings endpoints.
type SettingHandler struct {
	db *gorm.DB
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// List returns every settings row.
func (h *SettingHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{"key": row.Key, "value": json.RawMessage(row.Value)})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Get returns one settings row by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}

	var row models.Setting
	errFind := h.db.WithContext(c.Request.Context()).Where("key = ?", key).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read setting failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": row.Key, "value": json.RawMessage(row.Value)})
}

// settingUpdateRequest defines the update payload.
type settingUpdateRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// Update upserts a settings row and refreshes the in-process snapshot.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}

	var req settingUpdateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil || !json.Valid(req.Value) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	record := models.Setting{Key: key, Value: []byte(req.Value)}
	errUpsert := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
		return
	}

	if errReload := internalsettings.Reload(h.db); errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reload settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}
