package artalk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
)

// SimulationDescriptor tells the browser to animate the avatar itself.
// VideoPath stays null so consumers can tell a descriptor from a
// rendered video by shape alone.
type SimulationDescriptor struct {
	Mode          string  `json:"mode"`
	VideoPath     *string `json:"video_path"`
	CharacterID   string  `json:"character_id"`
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	AudioPath     string  `json:"audio_path"`
	AnimationType string  `json:"animation_type"`
}

// BrowserAnimationSimulator is the degraded animation path: instead of
// a rendered video it emits a descriptor pointing the web client at the
// audio track for client-side lip sync.
type BrowserAnimationSimulator struct {
	logger *zap.Logger
}

// NewBrowserAnimationSimulator creates the fallback driver.
func NewBrowserAnimationSimulator(logger *zap.Logger) *BrowserAnimationSimulator {
	return &BrowserAnimationSimulator{logger: logger}
}

func (s *BrowserAnimationSimulator) Name() string {
	return "browser-animation"
}

// Generate writes the descriptor. The artifact is JSON, so a video
// output path is re-extensioned to .json.
func (s *BrowserAnimationSimulator) Generate(ctx context.Context, subject capability.PreparedSubject, input capability.GenerationInput) (string, error) {
	outputPath := input.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s_simulation_%d.json", subject.SubjectID, time.Now().Unix()))
	} else if ext := filepath.Ext(outputPath); !strings.EqualFold(ext, ".json") {
		outputPath = strings.TrimSuffix(outputPath, ext) + ".json"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	descriptor := SimulationDescriptor{
		Mode:          "simulation",
		VideoPath:     nil,
		CharacterID:   subject.SubjectID,
		Success:       true,
		Message:       "browser animation active",
		AudioPath:     input.AudioPath,
		AnimationType: "browser_lipSync",
	}

	data, err := json.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}

	s.logger.Info("browser animation descriptor written",
		zap.String("subject", subject.SubjectID),
		zap.String("output", outputPath))

	return outputPath, nil
}

// NewAdapter wires the ARTalk driver and the browser-animation
// fallback behind one capability gate.
func NewAdapter(logger *zap.Logger, opts ...capability.Option) (*capability.Adapter, *Driver) {
	driver := NewDriver(logger)
	sim := NewBrowserAnimationSimulator(logger)
	return capability.New("artalk", driver, sim, logger, opts...), driver
}
