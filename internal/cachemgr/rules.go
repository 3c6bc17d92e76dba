package cachemgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"

	"github.com/bassista/fitsync/internal/logger"
)

// RulesDocument is the on-disk shape of a classification rules file.
type RulesDocument struct {
	Rules []Rule `json:"rules" validate:"required,min=1,dive"`
}

// RulesFile loads and watches a JSON rules file so the classifier table
// can change without a restart.
type RulesFile struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
}

func NewRulesFile(path string) (*RulesFile, error) {
	if path == "" {
		return nil, fmt.Errorf("rules file path is required")
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	return &RulesFile{
		path:      path,
		dir:       dir,
		base:      filepath.Base(path),
		validator: validator.New(),
	}, nil
}

// Load reads, parses and validates the rules file.
func (f *RulesFile) Load() ([]Rule, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer file.Close()

	var doc RulesDocument
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules file: %w", err)
	}

	if err := f.validator.Struct(&doc); err != nil {
		return nil, fmt.Errorf("validate rules file: %w", err)
	}

	return doc.Rules, nil
}

// StartWatcher reloads the classifier when the rules file changes.
// It watches the parent directory (not the file) so atomic replace
// sequences (temp+rename) are still observed. Events are debounced to
// avoid double reloads on write+chmod/rename cycles. Cancel ctx to stop
// the goroutine and close the watcher.
func (f *RulesFile) StartWatcher(ctx context.Context, classifier *Classifier) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	reload := func() {
		rules, err := f.Load()
		if err != nil {
			logger.WithComponent("rules").Errorf("rules reload failed, keeping current table: %v", err)
			return
		}
		classifier.Replace(rules)
		logger.WithComponent("rules").Infof("classification rules reloaded (%d rules)", len(rules))
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		schedule := func() {
			if debounce != nil {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != f.base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent("rules").Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
