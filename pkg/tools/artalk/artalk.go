// Package artalk drives ARTalk speech-to-3D head animation behind a
// capability gate. Without the toolkit the adapter hands the browser a
// descriptor and lets it animate the avatar client-side.
package artalk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/types"
)

// RequiredFiles are the toolkit files the probe verifies, relative to
// the checkout.
var RequiredFiles = []string{
	"inference.py",
	filepath.Join("assets", "config.json"),
	filepath.Join("app", "__init__.py"),
}

// Driver runs ARTalk inference as a child process.
type Driver struct {
	logger     *zap.Logger
	python     string
	toolkitDir string
}

// NewDriver creates the full-mode driver. Paths come from config
// (artalk.python, artalk.dir) with a checkout next to the binary as
// default.
func NewDriver(logger *zap.Logger) *Driver {
	d := &Driver{
		logger:     logger,
		python:     "python3",
		toolkitDir: "ARTalk",
	}

	if bin := viper.GetString("artalk.python"); bin != "" {
		d.python = bin
	}
	if dir := viper.GetString("artalk.dir"); dir != "" {
		d.toolkitDir = dir
	}

	return d
}

func (d *Driver) Name() string {
	return "artalk"
}

// Probe checks the toolkit checkout, its required files, the Python
// interpreter and a working GPU. ARTalk rendering is impractical on
// CPU, so a failed nvidia-smi downgrades to simulation.
func (d *Driver) Probe() capability.Report {
	return capability.RunChecks(
		capability.BinaryCheck("python", d.python),
		capability.DirCheck("toolkit", d.toolkitDir),
		capability.FilesCheck("toolkit_files", d.toolkitDir, RequiredFiles),
		cudaCheck(),
	)
}

func cudaCheck() capability.Check {
	return capability.Check{
		Name: "cuda",
		Run: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := exec.CommandContext(ctx, "nvidia-smi").Run(); err != nil {
				return fmt.Errorf("nvidia-smi failed: %w", err)
			}
			return nil
		},
	}
}

// Generate renders a head animation video for the prepared subject.
// The character's style motion is selected from the roster mapping.
func (d *Driver) Generate(ctx context.Context, subject capability.PreparedSubject, input capability.GenerationInput) (string, error) {
	if _, err := os.Stat(input.AudioPath); err != nil {
		return "", fmt.Errorf("audio input unreadable: %w", err)
	}

	outputPath := input.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s_artalk_%d.mp4", subject.SubjectID, time.Now().Unix()))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	args := d.inferenceArgs(subject.SubjectID, input.AudioPath, outputPath)
	cmd := exec.CommandContext(ctx, d.python, args...)
	cmd.Dir = d.toolkitDir

	d.logger.Info("running artalk inference",
		zap.String("subject", subject.SubjectID),
		zap.String("style", types.StyleFor(subject.SubjectID)))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("artalk inference timed out")
		}
		return "", fmt.Errorf("artalk inference failed: %w: %s", err, tail(string(output), 400))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("output not produced: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("output video is empty: %s", outputPath)
	}

	return outputPath, nil
}

func (d *Driver) inferenceArgs(characterID, audioPath, outputPath string) []string {
	return []string{
		"inference.py",
		"--audio", audioPath,
		"--style_motion", types.StyleFor(characterID),
		"--shape_id", "mesh",
		"--save_name", outputPath,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
