package settings

// DB config keys and defaults for settings.
const (
	// GateLimitKey controls the per-user request gate limit per second.
	GateLimitKey = "GATE_LIMIT"
	// GateRedisEnabledKey toggles Redis-backed request gating.
	GateRedisEnabledKey = "GATE_REDIS_ENABLED"
	// GateRedisAddrKey defines the Redis address for the request gate.
	GateRedisAddrKey = "GATE_REDIS_ADDR"
	// GateRedisPasswordKey defines the Redis password for the request gate.
	GateRedisPasswordKey = "GATE_REDIS_PASSWORD"
	// GateRedisDBKey defines the Redis DB index for the request gate.
	GateRedisDBKey = "GATE_REDIS_DB"
	// GateRedisPrefixKey defines the Redis key prefix for the request gate.
	GateRedisPrefixKey = "GATE_REDIS_PREFIX"
	// DefaultGateLimit is the fallback gate limit (0 means unlimited).
	DefaultGateLimit = 0
	// DefaultGateRedisPrefix is the fallback Redis key prefix.
	DefaultGateRedisPrefix = "regd:gate"
)
