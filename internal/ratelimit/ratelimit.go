package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/registryhub/registryd/internal/db"
	"github.com/registryhub/registryd/internal/models"
	"gorm.io/gorm"
)

// RateLimitedError reports a denied check and the instant the next token is
// projected to become available.
type RateLimitedError struct {
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.UTC().Format(time.RFC3339))
}

// Config holds the resolved refill rate and burst capacity for one action.
type Config struct {
	Rate  time.Duration
	Burst int64
}

// Limiter throttles per-user actions through token buckets persisted in the
// shared database. It holds no mutable state of its own: every check is a
// single atomic upsert against the bucket row, so any number of processes
// sharing the database serialize correctly without in-process locks.
type Limiter struct {
	db     *gorm.DB
	config map[Action]Config
}

// New constructs a Limiter. The config map carries only explicitly overridden
// actions; missing entries fall back to each action's compiled-in defaults.
func New(conn *gorm.DB, config map[Action]Config) *Limiter {
	return &Limiter{db: conn, config: config}
}

// Check takes a token from the user's bucket for the action at the supplied
// instant. It returns nil when the action is allowed, a *RateLimitedError when
// the bucket is empty, and a wrapped storage error otherwise. The bucket row
// is advanced on every call, allowed or not.
func (l *Limiter) Check(ctx context.Context, userID uint64, action Action, now time.Time) error {
	bucket, err := l.takeToken(ctx, userID, action, now)
	if err != nil {
		return fmt.Errorf("ratelimit: take token: %w", err)
	}
	if bucket.Tokens >= 1 {
		return nil
	}
	return &RateLimitedError{RetryAfter: bucket.LastRefillTime().Add(l.configFor(action).Rate)}
}

// takeToken refills the user's bucket as needed, takes a token from it, and
// returns the resulting row.
//
// The number of tokens remaining is always between 0 and the effective burst.
// If it is 0 the request must be rejected, as the user had no token to take.
// Technically a "full" bucket holds burst+1 tokens for an instant, but that
// value is never observable since buckets are only refilled when a token is
// being taken.
//
// Both branches of the upsert run as one statement so concurrent callers for
// the same (user, action) key serialize on the database's conflict handling
// instead of racing a read against a write:
//
//   - no row yet: insert a fresh bucket at full burst. The first call for a
//     new key is deliberately not pre-decremented; it is allowed and leaves
//     the bucket at capacity.
//   - existing row: consume one token (floored at zero), add one token per
//     whole elapsed rate interval, clamp to the effective burst, and advance
//     last_refill by an exact multiple of the rate so leftover sub-interval
//     time keeps counting toward the next refill.
func (l *Limiter) takeToken(ctx context.Context, userID uint64, action Action, now time.Time) (models.PublishLimitBucket, error) {
	cfg := l.configFor(action)
	if cfg.Rate <= 0 {
		return models.PublishLimitBucket{}, fmt.Errorf("non-positive rate for action %s", action)
	}
	nowMicros := now.UnixMicro()
	rateMicros := cfg.Rate.Microseconds()

	burst, errBurst := l.effectiveBurst(ctx, userID, action, nowMicros, cfg.Burst)
	if errBurst != nil {
		return models.PublishLimitBucket{}, errBurst
	}

	least := dbutil.LeastFunc(l.db)
	greatest := dbutil.GreatestFunc(l.db)

	// Elapsed intervals are computed in integer microseconds; the division
	// truncates, which equals floor because the difference is clamped
	// non-negative first. GREATEST around the elapsed term also keeps
	// last_refill from moving backwards if a caller's clock lags the row.
	query := fmt.Sprintf(`
INSERT INTO publish_limit_buckets (user_id, action, tokens, last_refill)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, action) DO UPDATE SET
	tokens = %[1]s(?, %[2]s(0, publish_limit_buckets.tokens - 1) + %[2]s(0, ? - publish_limit_buckets.last_refill) / ?),
	last_refill = publish_limit_buckets.last_refill + %[2]s(0, ? - publish_limit_buckets.last_refill) / ? * ?
RETURNING user_id, action, tokens, last_refill`, least, greatest)

	var bucket models.PublishLimitBucket
	errUpsert := l.db.WithContext(ctx).Raw(query,
		userID, int16(action), burst, nowMicros,
		burst, nowMicros, rateMicros,
		nowMicros, rateMicros, rateMicros,
	).Scan(&bucket).Error
	if errUpsert != nil {
		return models.PublishLimitBucket{}, fmt.Errorf("upsert bucket: %w", errUpsert)
	}
	return bucket, nil
}

// effectiveBurst resolves the burst for this check: the user's override when
// one is present and unexpired at now, the configured burst otherwise.
func (l *Limiter) effectiveBurst(ctx context.Context, userID uint64, action Action, nowMicros, fallback int64) (int64, error) {
	var override models.PublishRateOverride
	errFind := l.db.WithContext(ctx).
		Where("user_id = ? AND action = ?", userID, int16(action)).
		Where("expires_at IS NULL OR expires_at > ?", nowMicros).
		First(&override).Error
	switch {
	case errFind == nil:
		return override.Burst, nil
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		return fallback, nil
	default:
		return 0, fmt.Errorf("lookup override: %w", errFind)
	}
}

// configFor returns the action's config, falling back to compiled-in defaults.
func (l *Limiter) configFor(action Action) Config {
	if cfg, ok := l.config[action]; ok {
		return cfg
	}
	return Config{Rate: action.DefaultRate(), Burst: action.DefaultBurst()}
}
