package queue

import "encoding/json"

// Kind labels a queued event. The set is open: the remote endpoint treats
// kinds it does not recognize as opaque telemetry.
type Kind string

const (
	KindExerciseCompleted Kind = "exercise_completed"
	KindSessionStart      Kind = "session_start"
	KindStreakChanged     Kind = "streak_changed"
	KindCachePurged       Kind = "cache_purged"
)

// Event is one outbound telemetry record. ID is the idempotency key the
// remote endpoint dedups on; Seq fixes the local delivery order.
type Event struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	CreatedAt int64           `json:"created_at"`
	Attempts  int             `json:"attempts"`
}

// DeadLetter is a terminally failed event. Dead letters are never resent;
// they exist so failures are visible, not retried.
type DeadLetter struct {
	Event    Event  `json:"event"`
	FailedAt int64  `json:"failed_at"`
	Reason   string `json:"reason"`
}
