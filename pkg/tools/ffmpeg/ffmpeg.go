package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Processor shells out to ffmpeg/ffprobe for the media operations the
// battle pipeline needs. Every invocation uses an argument vector and a
// bounded context; nothing is ever routed through a shell.
type Processor struct {
	logger     *zap.Logger
	ffmpegBin  string
	ffprobeBin string
	timeout    time.Duration
}

// NewProcessor creates a media processor. Binary paths and the run
// timeout can be overridden through config (ffmpeg.binary,
// ffmpeg.probe_binary, ffmpeg.timeout_seconds).
func NewProcessor(logger *zap.Logger) *Processor {
	p := &Processor{
		logger:     logger,
		ffmpegBin:  "ffmpeg",
		ffprobeBin: "ffprobe",
		timeout:    120 * time.Second,
	}

	if bin := viper.GetString("ffmpeg.binary"); bin != "" {
		p.ffmpegBin = bin
	}
	if bin := viper.GetString("ffmpeg.probe_binary"); bin != "" {
		p.ffprobeBin = bin
	}
	if secs := viper.GetInt("ffmpeg.timeout_seconds"); secs > 0 {
		p.timeout = time.Duration(secs) * time.Second
	}

	return p
}

// Binary returns the configured ffmpeg binary path.
func (p *Processor) Binary() string {
	return p.ffmpegBin
}

// Available reports whether ffmpeg actually runs on this host. It
// executes `ffmpeg -version` with a short deadline instead of only
// resolving the binary on PATH, so a broken install is caught too.
func (p *Processor) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegBin, "-version")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err != nil {
		p.logger.Debug("ffmpeg not runnable", zap.String("binary", p.ffmpegBin), zap.Error(err))
		return false
	}
	return true
}

// ComposeStillVideo renders an mp4 from one still image and an audio
// track. The image is looped and the output lasts exactly as long as
// the audio. This is the degraded stand-in for a talking-head render:
// same container, same audio, static portrait.
func (p *Processor) ComposeStillVideo(ctx context.Context, imagePath, audioPath, outputPath string) error {
	for _, in := range []string{imagePath, audioPath} {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("input missing: %w", err)
		}
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		outputPath,
	}

	if err := p.run(ctx, p.ffmpegBin, args); err != nil {
		return err
	}
	return verifyOutput(outputPath)
}

// ExtractFrame grabs a single frame from a video at the given offset
// and writes it as a PNG. Used to turn an uploaded reference video into
// a portrait still.
func (p *Processor) ExtractFrame(ctx context.Context, videoPath string, offsetSeconds float64, outputPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("input missing: %w", err)
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(offsetSeconds, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		outputPath,
	}

	if err := p.run(ctx, p.ffmpegBin, args); err != nil {
		return err
	}
	return verifyOutput(outputPath)
}

// Concat joins clips into one video without re-encoding. listPath must
// be an ffmpeg concat demuxer manifest, one `file '<path>'` line per
// clip, and every clip must share codec parameters. Turn videos do: they
// all come out of the same render path.
func (p *Processor) Concat(ctx context.Context, listPath, outputPath string) error {
	if _, err := os.Stat(listPath); err != nil {
		return fmt.Errorf("input missing: %w", err)
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}

	if err := p.run(ctx, p.ffmpegBin, args); err != nil {
		return err
	}
	return verifyOutput(outputPath)
}

// Duration returns the duration of a media file in seconds, read with
// ffprobe.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("input missing: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.ffprobeBin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s timed out probing %s", p.ffprobeBin, path)
		}
		return 0, fmt.Errorf("%s failed: %w: %s", p.ffprobeBin, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbeDuration(stdout.String())
}

func (p *Processor) run(ctx context.Context, bin string, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Stderr = &stderr

	p.logger.Debug("running media command",
		zap.String("binary", bin),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s", bin, p.timeout)
		}
		return fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func parseProbeDuration(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("empty duration output")
	}
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected duration output %q: %w", text, err)
	}
	return seconds, nil
}

// verifyOutput guards against encoders that exit zero but write nothing.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output not produced: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty: %s", path)
	}
	return nil
}
