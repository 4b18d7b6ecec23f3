package models

import "time"

// PublishLimitBucket stores one user's token bucket for one limited action.
// Timestamps are kept as integer microseconds since the Unix epoch so the
// refill arithmetic inside the upsert statement stays exact for sub-second
// rates on every dialect.
type PublishLimitBucket struct {
	UserID uint64 `gorm:"primaryKey;autoIncrement:false"` // Bucket owner.
	Action int16  `gorm:"primaryKey;autoIncrement:false"` // Limited action.

	Tokens     int64 `gorm:"not null"` // Remaining tokens, 0..burst.
	LastRefill int64 `gorm:"not null"` // Last refill, microseconds since epoch.
}

// TableName pins the bucket table name.
func (PublishLimitBucket) TableName() string { return "publish_limit_buckets" }

// LastRefillTime converts the stored refill instant back to a time.Time.
func (b PublishLimitBucket) LastRefillTime() time.Time {
	return time.UnixMicro(b.LastRefill).UTC()
}

// PublishRateOverride stores a per-user burst override for one limited action.
// An override applies while ExpiresAt is null or still in the future.
type PublishRateOverride struct {
	UserID uint64 `gorm:"primaryKey;autoIncrement:false"` // Override owner.
	Action int16  `gorm:"primaryKey;autoIncrement:false"` // Limited action.

	Burst     int64  `gorm:"not null"` // Replacement burst capacity.
	ExpiresAt *int64 `gorm:""`         // Expiry, microseconds since epoch; nil never expires.
}

// TableName pins the override table name.
func (PublishRateOverride) TableName() string { return "publish_rate_overrides" }

// ExpiresAtTime converts the stored expiry to a time.Time, or nil.
func (o PublishRateOverride) ExpiresAtTime() *time.Time {
	if o.ExpiresAt == nil {
		return nil
	}
	t := time.UnixMicro(*o.ExpiresAt).UTC()
	return &t
}
