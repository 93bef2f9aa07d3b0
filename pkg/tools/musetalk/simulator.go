package musetalk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/tools/ffmpeg"
)

// StillFrameSimulator is the degraded lip-sync path: the prepared
// portrait looped over the verse audio. Same container, same audio,
// no mouth movement.
type StillFrameSimulator struct {
	logger *zap.Logger
	media  *ffmpeg.Processor
}

// NewStillFrameSimulator creates the fallback driver.
func NewStillFrameSimulator(logger *zap.Logger, media *ffmpeg.Processor) *StillFrameSimulator {
	return &StillFrameSimulator{
		logger: logger,
		media:  media,
	}
}

func (s *StillFrameSimulator) Name() string {
	return "still-frame"
}

// Generate composes the still video. A video source is reduced to its
// first frame before muxing.
func (s *StillFrameSimulator) Generate(ctx context.Context, subject capability.PreparedSubject, input capability.GenerationInput) (string, error) {
	imagePath := subject.StoredPath
	if isVideoSource(imagePath) {
		frame := filepath.Join(filepath.Dir(subject.StoredPath), "frame.png")
		if err := s.media.ExtractFrame(ctx, subject.StoredPath, 0, frame); err != nil {
			return "", fmt.Errorf("extract portrait frame: %w", err)
		}
		imagePath = frame
	}

	outputPath := input.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(os.TempDir(), fmt.Sprintf("sim_%s_%d.mp4", subject.SubjectID, time.Now().Unix()))
	}

	if err := s.media.ComposeStillVideo(ctx, imagePath, input.AudioPath, outputPath); err != nil {
		return "", err
	}

	s.logger.Info("still-frame video composed",
		zap.String("subject", subject.SubjectID),
		zap.String("output", outputPath))

	return outputPath, nil
}

func isVideoSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".avi", ".webm", ".mkv":
		return true
	}
	return false
}

// NewAdapter wires the MuseTalk driver and the still-frame fallback
// behind one capability gate. The returned driver handle exposes the
// mouth-openness setting.
func NewAdapter(logger *zap.Logger, media *ffmpeg.Processor, opts ...capability.Option) (*capability.Adapter, *Driver) {
	driver := NewDriver(logger)
	sim := NewStillFrameSimulator(logger, media)
	return capability.New("musetalk", driver, sim, logger, opts...), driver
}
