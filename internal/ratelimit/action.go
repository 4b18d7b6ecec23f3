package ratelimit

import "time"

// Action identifies a rate-limited operation kind. Values are stored in the
// database, so existing ones must never be renumbered.
type Action int16

const (
	// ActionPublishNew limits publishing a new crate version.
	ActionPublishNew Action = 0
)

// Actions lists every registered action.
func Actions() []Action {
	return []Action{ActionPublishNew}
}

// Valid reports whether the action is registered.
func (a Action) Valid() bool {
	switch a {
	case ActionPublishNew:
		return true
	default:
		return false
	}
}

// DefaultRate returns the compiled-in refill interval for the action.
func (a Action) DefaultRate() time.Duration {
	switch a {
	case ActionPublishNew:
		return time.Hour
	default:
		return 0
	}
}

// DefaultBurst returns the compiled-in burst capacity for the action.
func (a Action) DefaultBurst() int64 {
	switch a {
	case ActionPublishNew:
		return 5
	default:
		return 0
	}
}

// EnvKey returns the stable name used to look up environment overrides.
func (a Action) EnvKey() string {
	switch a {
	case ActionPublishNew:
		return "PUBLISH_NEW"
	default:
		return ""
	}
}

func (a Action) String() string {
	switch a {
	case ActionPublishNew:
		return "publish_new"
	default:
		return "unknown"
	}
}
