package queue

import (
	"fmt"
	"os"

	honeybadger "github.com/honeybadger-io/honeybadger-go"

	"github.com/bassista/fitsync/internal/logger"
)

// HoneybadgerReporter forwards dead-lettered events to Honeybadger so they
// are visible somewhere other than the local log. Reporting is best-effort.
type HoneybadgerReporter struct {
	enabled bool
}

// NewHoneybadgerReporter enables reporting when HONEYBADGER_API_KEY is
// set, mirroring the HTTP middleware's activation.
func NewHoneybadgerReporter() *HoneybadgerReporter {
	apiKey := os.Getenv("HONEYBADGER_API_KEY")
	if apiKey == "" {
		logger.WithComponent("queue").Info("Honeybadger dead-letter reporting disabled; set HONEYBADGER_API_KEY to enable it.")
		return &HoneybadgerReporter{}
	}

	honeybadger.Configure(honeybadger.Configuration{
		APIKey: apiKey,
		Env:    os.Getenv("GO_ENV"),
	})
	return &HoneybadgerReporter{enabled: true}
}

func (r *HoneybadgerReporter) ReportDeadLetter(ev Event, cause error) {
	if !r.enabled {
		return
	}
	honeybadger.Notify(
		fmt.Sprintf("Dead-lettered %s event after %d attempts", ev.Kind, ev.Attempts),
		honeybadger.Context{
			"event_id": ev.ID,
			"kind":     string(ev.Kind),
			"user_id":  ev.UserID,
			"cause":    cause.Error(),
		},
		honeybadger.Tags{"dead-letter", "sync"},
	)
}
