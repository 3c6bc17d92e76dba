// Package notify builds the payloads handed to the OS notification
// surface. Delivery is best-effort; nothing here retries.
package notify

import (
	"encoding/json"
	"fmt"
)

// Action is one button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Payload is the notification shape the OS surface accepts.
type Payload struct {
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	Tag     string          `json:"tag,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Actions []Action        `json:"actions,omitempty"`
}

// WorkoutReminder is the daily training reminder. The tag keeps repeated
// reminders from stacking up.
func WorkoutReminder(programName string) Payload {
	return Payload{
		Title: "Time to train",
		Body:  fmt.Sprintf("Your %s session is waiting. Keep the streak alive!", programName),
		Tag:   "workout-reminder",
		Actions: []Action{
			{Action: "start", Title: "Start now"},
			{Action: "snooze", Title: "Later"},
		},
	}
}

// Streak lengths worth interrupting the user for.
var milestones = map[int]bool{3: true, 7: true, 14: true, 30: true, 50: true, 100: true, 365: true}

// MilestoneFor returns the celebration payload when days is a milestone
// streak length.
func MilestoneFor(days int) (Payload, bool) {
	if !milestones[days] {
		return Payload{}, false
	}
	return StreakMilestone(days), true
}

// StreakMilestone celebrates a streak length worth celebrating.
func StreakMilestone(days int) Payload {
	return Payload{
		Title: fmt.Sprintf("%d-day streak!", days),
		Body:  "You have trained every day. Keep it going.",
		Tag:   "streak-milestone",
	}
}

// ActionClick is the message the notification surface delivers back when
// a user taps an action.
type ActionClick struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ParseActionClick decodes a click message, rejecting anything that is
// not a NOTIFICATION_ACTION.
func ParseActionClick(data []byte) (*ActionClick, error) {
	var click ActionClick
	if err := json.Unmarshal(data, &click); err != nil {
		return nil, fmt.Errorf("decode action click: %w", err)
	}
	if click.Type != "NOTIFICATION_ACTION" {
		return nil, fmt.Errorf("unexpected message type %q", click.Type)
	}
	return &click, nil
}
