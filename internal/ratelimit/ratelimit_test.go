package ratelimit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/registryhub/registryd/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.PublishLimitBucket{}, &models.PublishRateOverride{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func sampleLimiter(conn *gorm.DB, rate time.Duration, burst int64) *Limiter {
	return New(conn, map[Action]Config{
		ActionPublishNew: {Rate: rate, Burst: burst},
	})
}

func seedBucket(t *testing.T, conn *gorm.DB, userID uint64, tokens int64, lastRefill time.Time) {
	t.Helper()
	row := models.PublishLimitBucket{
		UserID:     userID,
		Action:     int16(ActionPublishNew),
		Tokens:     tokens,
		LastRefill: lastRefill.UnixMicro(),
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed bucket: %v", errCreate)
	}
}

func seedOverride(t *testing.T, conn *gorm.DB, userID uint64, burst int64, expiresAt *time.Time) {
	t.Helper()
	row := models.PublishRateOverride{
		UserID: userID,
		Action: int16(ActionPublishNew),
		Burst:  burst,
	}
	if expiresAt != nil {
		micros := expiresAt.UnixMicro()
		row.ExpiresAt = &micros
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed override: %v", errCreate)
	}
}

func expectBucket(t *testing.T, got models.PublishLimitBucket, tokens int64, lastRefill time.Time) {
	t.Helper()
	if got.Tokens != tokens {
		t.Fatalf("tokens = %d, want %d", got.Tokens, tokens)
	}
	if got.LastRefill != lastRefill.UnixMicro() {
		t.Fatalf("last_refill = %s, want %s", got.LastRefillTime(), lastRefill.UTC())
	}
}

// testNow strips sub-microsecond precision so values round trip through the
// stored integer microseconds unchanged.
func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func TestTakeTokenWithNoBucketCreatesNewOne(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 10, now)

	limiter = sampleLimiter(conn, 50*time.Millisecond, 20)
	bucket, err = limiter.takeToken(context.Background(), 2, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 20, now)
}

func TestTakeTokenWithExistingBucketModifiesIt(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedBucket(t, conn, 1, 5, now)

	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 4, now)
}

func TestTakeTokenAfterDelayRefills(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedBucket(t, conn, 1, 5, now)

	refillTime := now.Add(2 * time.Second)
	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, refillTime)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 6, refillTime)
}

func TestRefillSubsecondRate(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, 100*time.Millisecond, 10)
	seedBucket(t, conn, 1, 5, now)

	refillTime := now.Add(300 * time.Millisecond)
	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, refillTime)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 7, refillTime)
}

func TestLastRefillAlwaysAdvancedByMultipleOfRate(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, 100*time.Millisecond, 10)
	seedBucket(t, conn, 1, 5, now)

	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now.Add(250*time.Millisecond))
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	// 2 whole intervals elapsed; the leftover 50ms keeps counting toward the
	// next refill instead of being reset.
	expectBucket(t, bucket, 6, now.Add(200*time.Millisecond))
}

func TestZeroTokensReturnedWhenUserHasNoTokensLeft(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedBucket(t, conn, 1, 1, now)

	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 0, now)

	bucket, err = limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 0, now)
}

func TestUserWithNoTokensGetsOneAfterExactlyRate(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedBucket(t, conn, 1, 0, now)

	refillTime := now.Add(time.Second)
	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, refillTime)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 1, refillTime)
}

func TestTokensNeverRefillPastBurst(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedBucket(t, conn, 1, 8, now)

	refillTime := now.Add(4 * time.Second)
	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, refillTime)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	expectBucket(t, bucket, 10, refillTime)
}

func TestOverrideIsUsedInsteadOfGlobalBurstIfPresent(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	seedOverride(t, conn, 1, 20, nil)

	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	otherBucket, err := limiter.takeToken(context.Background(), 2, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}

	if bucket.Tokens != 20 {
		t.Fatalf("override bucket tokens = %d, want 20", bucket.Tokens)
	}
	if otherBucket.Tokens != 10 {
		t.Fatalf("default bucket tokens = %d, want 10", otherBucket.Tokens)
	}
}

func TestOverridesCanExpire(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 10)
	expiresAt := now.Add(30 * 24 * time.Hour)
	seedOverride(t, conn, 1, 20, &expiresAt)

	bucket, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	otherBucket, err := limiter.takeToken(context.Background(), 2, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	if bucket.Tokens != 20 || otherBucket.Tokens != 10 {
		t.Fatalf("tokens = %d/%d, want 20/10", bucket.Tokens, otherBucket.Tokens)
	}

	expired := now.Add(-30 * 24 * time.Hour).UnixMicro()
	if errExpire := conn.Model(&models.PublishRateOverride{}).
		Where("user_id = ?", 1).
		Update("expires_at", expired).Error; errExpire != nil {
		t.Fatalf("expire override: %v", errExpire)
	}

	bucket, err = limiter.takeToken(context.Background(), 1, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}
	otherBucket, err = limiter.takeToken(context.Background(), 2, ActionPublishNew, now)
	if err != nil {
		t.Fatalf("take token: %v", err)
	}

	// The overridden user lands on 10, not 9: banked tokens above the new
	// burst are truncated down to the burst on the next call.
	if bucket.Tokens != 10 {
		t.Fatalf("clamped bucket tokens = %d, want 10", bucket.Tokens)
	}
	if otherBucket.Tokens != 9 {
		t.Fatalf("default bucket tokens = %d, want 9", otherBucket.Tokens)
	}
}

func TestCheckAllowsUntilExhaustedThenDenies(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := sampleLimiter(conn, time.Second, 2)
	ctx := context.Background()

	// First call creates the bucket at full burst and is free; the second
	// leaves one token behind. The third drains the bucket to zero, which
	// is a denial: the check consumes a token and inspects the remainder.
	for i := 0; i < 2; i++ {
		if errCheck := limiter.Check(ctx, 1, ActionPublishNew, now); errCheck != nil {
			t.Fatalf("check %d: %v", i, errCheck)
		}
	}

	errCheck := limiter.Check(ctx, 1, ActionPublishNew, now)
	var limited *RateLimitedError
	if !errors.As(errCheck, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", errCheck)
	}
	wantRetry := now.Add(time.Second)
	if !limited.RetryAfter.Equal(wantRetry) {
		t.Fatalf("retry after = %s, want %s", limited.RetryAfter, wantRetry)
	}

	// Repeated denied calls converge on the same projection.
	errCheck = limiter.Check(ctx, 1, ActionPublishNew, now)
	if !errors.As(errCheck, &limited) || !limited.RetryAfter.Equal(wantRetry) {
		t.Fatalf("second denial mismatch: %v", errCheck)
	}

	// Exactly one rate interval later a single token is available again.
	if errAllow := limiter.Check(ctx, 1, ActionPublishNew, now.Add(time.Second)); errAllow != nil {
		t.Fatalf("check after refill: %v", errAllow)
	}
	errCheck = limiter.Check(ctx, 1, ActionPublishNew, now.Add(time.Second))
	if !errors.As(errCheck, &limited) {
		t.Fatalf("expected denial after consuming refilled token, got %v", errCheck)
	}
}

func TestCheckFallsBackToCompiledDefaults(t *testing.T) {
	conn := testDB(t)
	now := testNow()

	limiter := New(conn, nil)
	if errCheck := limiter.Check(context.Background(), 1, ActionPublishNew, now); errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}

	var bucket models.PublishLimitBucket
	if errFind := conn.Where("user_id = ?", 1).First(&bucket).Error; errFind != nil {
		t.Fatalf("find bucket: %v", errFind)
	}
	expectBucket(t, bucket, ActionPublishNew.DefaultBurst(), now)
}

func TestTakeTokenRejectsNonPositiveRate(t *testing.T) {
	conn := testDB(t)

	limiter := sampleLimiter(conn, 0, 10)
	if _, err := limiter.takeToken(context.Background(), 1, ActionPublishNew, testNow()); err == nil {
		t.Fatal("expected error for zero rate")
	}
}
