package capability

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Check is one named, bounded availability test. Run must terminate on its
// own (use timeouts for anything that touches a process or the network) and
// must not write anything on failure.
type Check struct {
	Name string
	Run  func() error
}

// Report is the cached outcome of a probe. Failures maps check names to
// their error text for every check that did not pass.
type Report struct {
	Available bool              `json:"available"`
	Failures  map[string]string `json:"failures,omitempty"`
	ProbedAt  time.Time         `json:"probed_at"`
}

// RunChecks executes every check and folds the outcomes into a Report.
// All checks run even after a failure so the report names everything
// that is missing, not just the first hit.
func RunChecks(checks ...Check) Report {
	report := Report{
		Available: true,
		ProbedAt:  time.Now(),
	}

	for _, check := range checks {
		if err := check.Run(); err != nil {
			if report.Failures == nil {
				report.Failures = make(map[string]string)
			}
			report.Failures[check.Name] = err.Error()
			report.Available = false
		}
	}

	return report
}

// FileCheck verifies that a regular file exists at path.
func FileCheck(name, path string) Check {
	return Check{
		Name: name,
		Run: func() error {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory, expected a file", path)
			}
			return nil
		},
	}
}

// DirCheck verifies that a directory exists at path.
func DirCheck(name, path string) Check {
	return Check{
		Name: name,
		Run: func() error {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", path)
			}
			return nil
		},
	}
}

// FilesCheck verifies a set of files under a base directory, reporting
// every missing one in a single error.
func FilesCheck(name, baseDir string, relPaths []string) Check {
	return Check{
		Name: name,
		Run: func() error {
			var missing []string
			for _, rel := range relPaths {
				if _, err := os.Stat(filepath.Join(baseDir, rel)); err != nil {
					missing = append(missing, rel)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing files under %s: %v", baseDir, missing)
			}
			return nil
		},
	}
}

// BinaryCheck verifies that a binary resolves on PATH.
func BinaryCheck(name, binary string) Check {
	return Check{
		Name: name,
		Run: func() error {
			if _, err := exec.LookPath(binary); err != nil {
				return fmt.Errorf("%s not found in PATH: %w", binary, err)
			}
			return nil
		},
	}
}

// VersionCheck verifies that a binary both resolves and runs by invoking
// `binary -version` with a bounded timeout.
func VersionCheck(name, binary string, timeout time.Duration) Check {
	return Check{
		Name: name,
		Run: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			var out bytes.Buffer
			cmd := exec.CommandContext(ctx, binary, "-version")
			cmd.Stdout = &out
			cmd.Stderr = &out
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("%s -version failed: %w", binary, err)
			}
			return nil
		},
	}
}
