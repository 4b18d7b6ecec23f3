package models

import "time"

// Crate represents a published package name and its ownership root.
type Crate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:text;not null;uniqueIndex"` // Unique package name.

	OwnerID uint64 `gorm:"not null;index"`     // Publishing user ID.
	Owner   *User  `gorm:"foreignKey:OwnerID"` // Publishing user.

	Versions []CrateVersion `gorm:"foreignKey:CrateID"` // Published versions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// CrateVersion represents one published version of a crate.
type CrateVersion struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CrateID uint64 `gorm:"not null;index:idx_crate_versions_crate_num,unique"`          // Owning crate ID.
	Num     string `gorm:"type:text;not null;index:idx_crate_versions_crate_num,unique"` // Version string.

	PublishedBy uint64 `gorm:"not null"` // Publishing user ID.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Publish timestamp.
}
