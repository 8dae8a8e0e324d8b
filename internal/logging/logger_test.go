package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNoOpWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Get(CategoryIngest).Info("should not be written")

	if _, err := os.Stat(filepath.Join(dir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory must not be created in production mode")
	}
}

func TestCategoryFileWritten(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Get(CategorySections).Info("sectionizer produced %d sections", 4)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "sections") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, "logs", e.Name()))
			if !strings.Contains(string(data), "sectionizer produced 4 sections") {
				t.Errorf("log line missing, got: %s", data)
			}
		}
	}
	if !found {
		t.Error("no sections category log file created")
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"scrape": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryScrape) {
		t.Error("scrape category should be disabled")
	}
	if !IsCategoryEnabled(CategoryIngest) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestApplyAloneLeavesLoggersSilent(t *testing.T) {
	prevDir := logsDir
	logsDir = ""
	defer func() { logsDir = prevDir }()

	Apply(Settings{DebugMode: true, Level: "debug"})
	if l := Get(CategoryOrchestrator); l.logger != nil {
		t.Error("Get must return a no-op logger until Initialize sets the logs directory")
	}

	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if l := Get(CategoryOrchestrator); l.logger == nil {
		t.Error("Get must return a live logger after Initialize in debug mode")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("logs directory missing after Initialize: %v", err)
	}
}
