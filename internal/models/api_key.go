package models

import "time"

// APIKey represents a user-owned token used to authenticate publish requests.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	Name string `gorm:"type:text;not null"`             // Display name.
	Key  string `gorm:"type:text;not null;uniqueIndex"` // Token value.

	Revoked bool `gorm:"not null;default:false"` // Revocation flag.

	LastUsedAt *time.Time `gorm:""`                        // Last successful use.
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
