package capability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.pth")
	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	if err := FileCheck("weights", path).Run(); err != nil {
		t.Errorf("Expected existing file to pass, got: %v", err)
	}
	if err := FileCheck("weights", filepath.Join(dir, "missing.pth")).Run(); err == nil {
		t.Error("Expected missing file to fail")
	}
	if err := FileCheck("weights", dir).Run(); err == nil {
		t.Error("Expected directory path to fail a file check")
	}
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()

	if err := DirCheck("models", dir).Run(); err != nil {
		t.Errorf("Expected existing directory to pass, got: %v", err)
	}
	if err := DirCheck("models", filepath.Join(dir, "absent")).Run(); err == nil {
		t.Error("Expected missing directory to fail")
	}

	file := filepath.Join(dir, "not_a_dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := DirCheck("models", file).Run(); err == nil {
		t.Error("Expected file path to fail a directory check")
	}
}

func TestFilesCheckReportsAllMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.bin")
	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	err := FilesCheck("weights", dir, []string{"present.bin", "a/missing.pth", "b/also_missing.pth"}).Run()
	if err == nil {
		t.Fatal("Expected missing entries to fail the check")
	}
	if !strings.Contains(err.Error(), "a/missing.pth") || !strings.Contains(err.Error(), "b/also_missing.pth") {
		t.Errorf("Expected every missing path in the error, got: %v", err)
	}

	if err := FilesCheck("weights", dir, []string{"present.bin"}).Run(); err != nil {
		t.Errorf("Expected complete set to pass, got: %v", err)
	}
}

func TestBinaryCheck(t *testing.T) {
	if err := BinaryCheck("shell", "sh").Run(); err != nil {
		t.Errorf("Expected sh to resolve on PATH, got: %v", err)
	}
	if err := BinaryCheck("ghost", "definitely-not-a-real-binary-xyz").Run(); err == nil {
		t.Error("Expected unknown binary to fail")
	}
}

func TestRunChecksCollectsEveryFailure(t *testing.T) {
	report := RunChecks(
		Check{Name: "ok", Run: func() error { return nil }},
		Check{Name: "first", Run: func() error { return errors.New("boom") }},
		Check{Name: "second", Run: func() error { return errors.New("bang") }},
	)

	if report.Available {
		t.Error("Expected report to be unavailable")
	}
	if len(report.Failures) != 2 {
		t.Errorf("Expected 2 recorded failures, got %d", len(report.Failures))
	}
	if report.Failures["first"] != "boom" || report.Failures["second"] != "bang" {
		t.Errorf("Failure map incomplete: %v", report.Failures)
	}
	if report.ProbedAt.IsZero() {
		t.Error("Expected a probe timestamp")
	}
}

func TestRunChecksAllPassing(t *testing.T) {
	report := RunChecks(
		Check{Name: "a", Run: func() error { return nil }},
		Check{Name: "b", Run: func() error { return nil }},
	)

	if !report.Available {
		t.Errorf("Expected availability, failures: %v", report.Failures)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Expected no failures, got %v", report.Failures)
	}
}
