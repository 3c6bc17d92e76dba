package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/queue"
	"github.com/bassista/fitsync/internal/store"
)

// Wire-visible keys the UI layer reads directly.
const (
	KeyUserProgress  = "user_progress"
	KeyTodayProgress = "today_progress"
)

const dateLayout = "2006-01-02"

// Record is one exercise-completion fact. CompletedAt is the authoritative
// client clock; events recorded offline keep their original timestamp no
// matter when they reach the ledger.
type Record struct {
	ExerciseID   string    `json:"exercise_id" validate:"required"`
	ProgramID    string    `json:"program_id"`
	DayID        string    `json:"day_id" validate:"required"`
	UserID       string    `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at" validate:"required"`
	DurationSecs int       `json:"duration_secs" validate:"gte=0"`
	// Rating is 1-5; zero means unset and defaults to 5.
	Rating int `json:"rating" validate:"omitempty,min=1,max=5"`
}

// StreakState is derived state, never authored directly.
type StreakState struct {
	StreakDays      int    `json:"streak_days"`
	LongestStreak   int    `json:"longest_streak"`
	LastSessionDate string `json:"last_session_date,omitempty"`
}

// progressDoc is the whole value stored under user_progress. Whole-value
// writes keep updates last-writer-wins at key granularity.
type progressDoc struct {
	Streak StreakState `json:"streak"`
	// Completions marks (exercise id, day id) pairs already counted.
	Completions    map[string]string `json:"completions"`
	TotalCompleted int               `json:"total_completed"`
}

// DayProgress is the whole value stored under today_progress: the records
// completed on the most recent session date.
type DayProgress struct {
	Date    string   `json:"date"`
	Records []Record `json:"records"`
}

// Result is what RecordCompletion reports back to the UI.
type Result struct {
	Streak          StreakState `json:"streak"`
	IsNewCompletion bool        `json:"is_new_completion"`
}

// RecordCompletionError means the completion was not persisted. In-memory
// state is not advanced, so retrying the identical call is safe.
type RecordCompletionError struct {
	Err error
}

func (e *RecordCompletionError) Error() string {
	return fmt.Sprintf("record completion failed: %v", e.Err)
}

func (e *RecordCompletionError) Unwrap() error { return e.Err }

// TelemetryEmitter is the outbound event hook. *queue.Queue satisfies it.
type TelemetryEmitter interface {
	Enqueue(kind queue.Kind, payload json.RawMessage, userID string) (string, error)
}

// Ledger is the authoritative local record of completions and the streak
// derived from them. It is idempotent under replay: completion events that
// arrive duplicated, out of order or long after an offline gap never
// double-count and never regress the streak.
type Ledger struct {
	store     store.Store
	emitter   TelemetryEmitter
	validator *validator.Validate

	mu    sync.Mutex
	doc   progressDoc
	today DayProgress
}

// New loads persisted progress (if any) and returns a ready ledger.
func New(s store.Store, emitter TelemetryEmitter) (*Ledger, error) {
	l := &Ledger{
		store:     s,
		emitter:   emitter,
		validator: validator.New(),
		doc:       progressDoc{Completions: make(map[string]string)},
	}

	if err := store.GetJSON(s, KeyUserProgress, &l.doc); err != nil && !store.IsNotFound(err) {
		return nil, fmt.Errorf("load %s: %w", KeyUserProgress, err)
	}
	if l.doc.Completions == nil {
		l.doc.Completions = make(map[string]string)
	}
	if err := store.GetJSON(s, KeyTodayProgress, &l.today); err != nil && !store.IsNotFound(err) {
		return nil, fmt.Errorf("load %s: %w", KeyTodayProgress, err)
	}

	return l, nil
}

func completionKey(rec Record) string {
	return rec.ExerciseID + "|" + rec.DayID
}

// RecordCompletion appends a completion and updates the derived streak.
// Persistence comes first; the telemetry event is fire-and-forget and its
// loss never rolls back the ledger write.
func (l *Ledger) RecordCompletion(rec Record) (Result, error) {
	if err := l.validator.Struct(&rec); err != nil {
		return Result{}, fmt.Errorf("validate completion: %w", err)
	}
	if rec.Rating == 0 {
		rec.Rating = 5
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Work on copies; memory is only advanced once both writes land.
	doc := l.doc.clone()
	today := l.today.clone()

	key := completionKey(rec)
	date := rec.CompletedAt.Format(dateLayout)
	_, dup := doc.Completions[key]
	isNew := !dup
	if isNew {
		doc.Completions[key] = date
		doc.TotalCompleted++
	}

	applyStreak(&doc.Streak, date)

	switch {
	case today.Date == date:
		today.Records = append(today.Records, rec)
	case today.Date == "" || today.Date < date:
		today = DayProgress{Date: date, Records: []Record{rec}}
	default:
		// Late-arriving record from an earlier date: counted in the
		// aggregate, but the current day's list stays as it is.
	}

	if err := store.SetJSON(l.store, KeyUserProgress, doc); err != nil {
		return Result{}, &RecordCompletionError{Err: err}
	}
	if err := store.SetJSON(l.store, KeyTodayProgress, today); err != nil {
		return Result{}, &RecordCompletionError{Err: err}
	}

	l.doc = doc
	l.today = today

	l.emitTelemetry(rec, doc.Streak, isNew)
	return Result{Streak: doc.Streak, IsNewCompletion: isNew}, nil
}

// applyStreak advances state for a completion dated date. Late records
// (date before the stored last session) touch nothing: a streak is never
// rewritten backward because an offline event flushed late.
func applyStreak(s *StreakState, date string) {
	switch {
	case s.LastSessionDate == "":
		s.StreakDays = 1
		s.LastSessionDate = date
	default:
		switch d := daysBetween(s.LastSessionDate, date); {
		case d == 0:
			// already counted today
		case d == 1:
			s.StreakDays++
			s.LastSessionDate = date
		case d > 1:
			s.StreakDays = 1
			s.LastSessionDate = date
		default:
			// d < 0: out-of-order record, history only
		}
	}

	if s.StreakDays > s.LongestStreak {
		s.LongestStreak = s.StreakDays
	}
}

// daysBetween returns the whole calendar days from one date to the other,
// negative when to precedes from.
func daysBetween(from, to string) int {
	a, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0
	}
	b, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

func (l *Ledger) emitTelemetry(rec Record, streak StreakState, isNew bool) {
	if l.emitter == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"exercise_id":   rec.ExerciseID,
		"program_id":    rec.ProgramID,
		"day_id":        rec.DayID,
		"completed_at":  rec.CompletedAt.UnixMilli(),
		"duration_secs": rec.DurationSecs,
		"rating":        rec.Rating,
		"streak_days":   streak.StreakDays,
		"is_new":        isNew,
	})
	if err != nil {
		logger.WithComponent("ledger").Errorf("encode telemetry: %v", err)
		return
	}
	if _, err := l.emitter.Enqueue(queue.KindExerciseCompleted, payload, rec.UserID); err != nil {
		// Telemetry loss never rolls the ledger back
		logger.WithComponent("ledger").Warnf("telemetry enqueue failed: %v", err)
	}
}

// Snapshot returns the current streak state.
func (l *Ledger) Snapshot() StreakState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Streak
}

// Today returns the current day's completion list.
func (l *Ledger) Today() DayProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.today.clone()
}

// TotalCompleted returns the all-time count of distinct completions.
func (l *Ledger) TotalCompleted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.TotalCompleted
}

func (d progressDoc) clone() progressDoc {
	out := d
	out.Completions = make(map[string]string, len(d.Completions))
	for k, v := range d.Completions {
		out.Completions[k] = v
	}
	return out
}

func (d DayProgress) clone() DayProgress {
	out := d
	out.Records = append([]Record(nil), d.Records...)
	return out
}
