package cachemgr

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRulesFile_Load(t *testing.T) {
	path := writeRules(t, `{
		"rules": [
			{"prefix": "/assets/videos/", "partition": "exercise-media", "strategy": "cache-first"},
			{"prefix": "/api/", "partition": "dynamic", "strategy": "network-first"}
		]
	}`)

	f, err := NewRulesFile(path)
	if err != nil {
		t.Fatal(err)
	}

	rules, err := f.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Partition != PartitionExerciseMedia || rules[0].Strategy != StrategyCacheFirst {
		t.Errorf("unexpected first rule: %+v", rules[0])
	}
}

func TestRulesFile_Load_InvalidStrategy(t *testing.T) {
	path := writeRules(t, `{
		"rules": [
			{"prefix": "/assets/", "partition": "static", "strategy": "freshest-maybe"}
		]
	}`)

	f, err := NewRulesFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Load(); err == nil {
		t.Error("expected validation error for unknown strategy")
	}
}

func TestRulesFile_Load_MissingPartition(t *testing.T) {
	path := writeRules(t, `{"rules": [{"prefix": "/x/", "strategy": "cache-first"}]}`)

	f, err := NewRulesFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Load(); err == nil {
		t.Error("expected validation error for missing partition")
	}
}

func TestRulesFile_Load_EmptyRules(t *testing.T) {
	path := writeRules(t, `{"rules": []}`)

	f, err := NewRulesFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Load(); err == nil {
		t.Error("expected validation error for empty rules")
	}
}

func TestNewRulesFile_EmptyPath(t *testing.T) {
	if _, err := NewRulesFile(""); err == nil {
		t.Error("expected error for empty path")
	}
}
