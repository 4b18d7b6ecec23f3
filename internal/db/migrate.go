package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/registryhub/registryd/internal/models"
	internalsettings "github.com/registryhub/registryd/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.APIKey{},
		&models.Crate{},
		&models.CrateVersion{},
		&models.PublishLimitBucket{},
		&models.PublishRateOverride{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureGateSettings(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureGateSettings seeds the request-gate settings rows on first boot.
func ensureGateSettings(conn *gorm.DB) error {
	defaults := map[string]any{
		internalsettings.GateLimitKey:         internalsettings.DefaultGateLimit,
		internalsettings.GateRedisEnabledKey:  false,
		internalsettings.GateRedisAddrKey:     "",
		internalsettings.GateRedisPasswordKey: "",
		internalsettings.GateRedisDBKey:       0,
		internalsettings.GateRedisPrefixKey:   internalsettings.DefaultGateRedisPrefix,
	}
	for key, value := range defaults {
		var existing models.Setting
		errFind := conn.Where("key = ?", key).First(&existing).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: read setting %s: %w", key, errFind)
		}
		payload, errMarshal := json.Marshal(value)
		if errMarshal != nil {
			return fmt.Errorf("db: encode setting %s: %w", key, errMarshal)
		}
		if errCreate := conn.Create(&models.Setting{Key: key, Value: payload}).Error; errCreate != nil {
			return fmt.Errorf("db: seed setting %s: %w", key, errCreate)
		}
	}
	return nil
}
