// Package musetalk drives MuseTalk 1.5 lip-sync inference behind a
// capability gate. When the toolkit or its weights are missing the
// adapter degrades to a still-frame video composed with ffmpeg.
package musetalk

import (
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
	"gopkg.in/yaml.v3"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
)

// Version pins the MuseTalk release the invocation targets.
const (
	Version    = "v15"
	DefaultFPS = 25
)

// WeightFiles lists every model artifact realtime inference loads,
// relative to the models directory.
var WeightFiles = []string{
	"musetalkV15/musetalk.json",
	"musetalkV15/unet.pth",
	"sd-vae/config.json",
	"sd-vae/diffusion_pytorch_model.bin",
	"whisper/config.json",
	"whisper/pytorch_model.bin",
	"whisper/preprocessor_config.json",
	"dwpose/dw-ll_ucoco_384.pth",
	"face-parse-bisent/79999_iter.pth",
	"face-parse-bisent/resnet18-5c106cde.pth",
	"syncnet/latentsync_syncnet.pt",
}

// Driver runs MuseTalk realtime inference as a child process.
type Driver struct {
	logger     *zap.Logger
	python     string
	toolkitDir string
	modelsDir  string
	ffmpegPath string
	fps        int
	useFloat16 bool
	bboxShift  int
	workDir    string
}

// NewDriver creates the full-mode driver. Paths come from config
// (musetalk.python, musetalk.dir, musetalk.models_dir, musetalk.fps,
// musetalk.use_float16, ffmpeg.binary) with defaults matching a
// MuseTalk checkout next to the binary.
func NewDriver(logger *zap.Logger) *Driver {
	d := &Driver{
		logger:     logger,
		python:     "python3",
		toolkitDir: "MuseTalk",
		ffmpegPath: "ffmpeg",
		fps:        DefaultFPS,
		useFloat16: true,
		workDir:    filepath.Join(os.TempDir(), "musetalk_rap"),
	}

	if bin := viper.GetString("musetalk.python"); bin != "" {
		d.python = bin
	}
	if dir := viper.GetString("musetalk.dir"); dir != "" {
		d.toolkitDir = dir
	}
	if dir := viper.GetString("musetalk.models_dir"); dir != "" {
		d.modelsDir = dir
	} else {
		d.modelsDir = filepath.Join(d.toolkitDir, "models")
	}
	if fps := viper.GetInt("musetalk.fps"); fps > 0 {
		d.fps = fps
	}
	if viper.IsSet("musetalk.use_float16") {
		d.useFloat16 = viper.GetBool("musetalk.use_float16")
	}
	if bin := viper.GetString("ffmpeg.binary"); bin != "" {
		d.ffmpegPath = bin
	}

	return d
}

func (d *Driver) Name() string {
	return "musetalk"
}

// SetBBoxShift adjusts mouth openness for subsequent generations.
// Positive values open the mouth wider, negative values close it.
func (d *Driver) SetBBoxShift(shift int) {
	d.bboxShift = shift
	d.logger.Info("mouth openness adjusted", zap.Int("bbox_shift", shift))
}

// BBoxShift reports the current mouth openness setting.
func (d *Driver) BBoxShift() int {
	return d.bboxShift
}

// Probe checks everything realtime inference needs: a Python
// interpreter, a runnable ffmpeg, the inference script and the full
// weight set. A missing GPU never fails the probe; inference runs on
// CPU, only slower.
func (d *Driver) Probe() capability.Report {
	d.logGPU()
	return capability.RunChecks(
		capability.BinaryCheck("python", d.python),
		capability.VersionCheck("ffmpeg", d.ffmpegPath, 10*time.Second),
		capability.FilesCheck("inference_script", d.toolkitDir, []string{filepath.Join("scripts", "realtime_inference.py")}),
		capability.FilesCheck("model_weights", d.modelsDir, WeightFiles),
	)
}

// logGPU records whether CUDA hardware is visible. Informational only.
func (d *Driver) logGPU() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi", "-L").Output()
	if err != nil {
		d.logger.Warn("no CUDA GPU detected, inference will run on CPU")
		return
	}
	d.logger.Info("CUDA GPU detected",
		zap.String("gpu", strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]))
}

type inferenceConfig struct {
	VideoPath  string `yaml:"video_path"`
	AudioPath  string `yaml:"audio_path"`
	BBoxShift  int    `yaml:"bbox_shift"`
	UseFloat16 bool   `yaml:"use_float16"`
}

// Generate runs realtime inference for one prepared subject and moves
// the produced video to input.OutputPath.
func (d *Driver) Generate(ctx context.Context, subject capability.PreparedSubject, input capability.GenerationInput) (string, error) {
	if _, err := os.Stat(input.AudioPath); err != nil {
		return "", fmt.Errorf("audio input unreadable: %w", err)
	}

	outputPath := input.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(d.workDir, fmt.Sprintf("output_%s_%d.mp4", subject.SubjectID, time.Now().Unix()))
	}

	configPath, err := d.writeInferenceConfig(subject, input)
	if err != nil {
		return "", err
	}

	resultDir := filepath.Join(d.workDir, "results")
	if err := os.MkdirAll(resultDir, 0755); err != nil {
		return "", fmt.Errorf("create result directory: %w", err)
	}

	args := d.inferenceArgs(configPath, resultDir)
	cmd := exec.CommandContext(ctx, d.python, args...)
	cmd.Dir = d.toolkitDir

	d.logger.Info("running musetalk inference",
		zap.String("subject", subject.SubjectID),
		zap.String("config", configPath),
		zap.Int("bbox_shift", d.bboxShift))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("musetalk inference timed out")
		}
		return "", fmt.Errorf("musetalk inference failed: %w: %s", err, tail(string(output), 400))
	}

	produced, err := latestVideo(resultDir)
	if err != nil {
		return "", fmt.Errorf("inference exited cleanly but produced no video: %w", err)
	}
	if err := moveFile(produced, outputPath); err != nil {
		return "", err
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

func (d *Driver) writeInferenceConfig(subject capability.PreparedSubject, input capability.GenerationInput) (string, error) {
	if err := os.MkdirAll(d.workDir, 0755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}

	data, err := yaml.Marshal(inferenceConfig{
		VideoPath:  subject.StoredPath,
		AudioPath:  input.AudioPath,
		BBoxShift:  d.bboxShift,
		UseFloat16: d.useFloat16,
	})
	if err != nil {
		return "", fmt.Errorf("encode inference config: %w", err)
	}

	configPath := filepath.Join(d.workDir, fmt.Sprintf("config_%s.yaml", subject.SubjectID))
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("write inference config: %w", err)
	}
	return configPath, nil
}

// inferenceArgs builds the realtime inference argument vector. The
// command runs with the toolkit checkout as working directory so the
// module path resolves.
func (d *Driver) inferenceArgs(configPath, resultDir string) []string {
	args := []string{
		"-m", "scripts.realtime_inference",
		"--inference_config", configPath,
		"--result_dir", resultDir,
		"--unet_model_path", filepath.Join(d.modelsDir, "musetalkV15", "unet.pth"),
		"--unet_config", filepath.Join(d.modelsDir, "musetalkV15", "musetalk.json"),
		"--version", Version,
		"--fps", strconv.Itoa(d.fps),
		"--ffmpeg_path", d.ffmpegPath,
	}
	if d.useFloat16 {
		args = append(args, "--use_float16")
	}
	return args
}

// latestVideo finds the most recently modified mp4 under dir. Realtime
// inference names its output after the avatar id, so the driver locates
// it by recency instead of guessing the name.
func latestVideo(dir string) (string, error) {
	var newest string
	var newestTime time.Time

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = path
			newestTime = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if newest == "" {
		return "", fmt.Errorf("no mp4 under %s", dir)
	}
	return newest, nil
}

// moveFile renames when possible and falls back to a copy for
// cross-device moves out of the temp directory.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read produced video: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write output video: %w", err)
	}
	os.Remove(src)
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
