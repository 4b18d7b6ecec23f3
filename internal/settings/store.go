package settings

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/registryhub/registryd/internal/models"
	"gorm.io/gorm"
)

// snapshot holds the last loaded settings rows keyed by name.
var snapshot atomic.Pointer[map[string]json.RawMessage]

// Reload replaces the in-process settings snapshot from the database.
func Reload(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("settings: nil connection")
	}
	var rows []models.Setting
	if errFind := conn.Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}
	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		next[row.Key] = json.RawMessage(row.Value)
	}
	snapshot.Store(&next)
	return nil
}

// DBConfigValue returns the raw JSON value for key from the current snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	current := snapshot.Load()
	if current == nil {
		return nil, false
	}
	value, ok := (*current)[key]
	return value, ok
}

// ResetForTest clears the snapshot.
func ResetForTest() {
	snapshot.Store(nil)
}
