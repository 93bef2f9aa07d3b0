package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Bark synthesis defaults. Every battle voice is a Bark preset; 24 kHz
// mono is what the model emits.
const (
	DefaultVoicePreset = "v2/en_speaker_6"
	DefaultTemperature = 0.7
	OutputSampleRate   = 24000
)

// Request carries one synthesis job.
type Request struct {
	Text        string
	VoicePreset string
	Temperature float64
	OutputPath  string
}

// Result reports the outcome of a synthesis. Operational failures are
// carried in the struct, not as a Go error, so callers can log and
// decide whether to continue.
type Result struct {
	Success    bool    `json:"success"`
	OutputFile string  `json:"output_file,omitempty"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Engine is one speech synthesis backend.
type Engine interface {
	Name() string
	Available() bool
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// NewDefaultEngine picks the synthesis backend. tts.engine selects one
// explicitly; otherwise tts.server_url implies the Bark HTTP server and
// everything else falls back to the bundled Python script.
func NewDefaultEngine(logger *zap.Logger) Engine {
	switch strings.ToLower(viper.GetString("tts.engine")) {
	case "indextts", "indextts2":
		return NewIndexTTSEngine(logger)
	case "bark-server", "server":
		return NewBarkServer(logger, viper.GetString("tts.server_url"))
	case "script", "bark":
		return NewScriptEngine(logger)
	}

	if url := viper.GetString("tts.server_url"); url != "" {
		return NewBarkServer(logger, url)
	}
	return NewScriptEngine(logger)
}

// Processor fronts an Engine with input validation, default filling and
// output directory handling.
type Processor struct {
	logger *zap.Logger
	engine Engine
}

// NewProcessor creates a speech processor around the given engine.
func NewProcessor(logger *zap.Logger, engine Engine) *Processor {
	return &Processor{
		logger: logger,
		engine: engine,
	}
}

// Engine exposes the wrapped backend.
func (p *Processor) Engine() Engine {
	return p.engine
}

// Generate synthesizes text into a wav file. Empty voice and
// temperature fall back to the package defaults; an empty output path
// gets a timestamped name under output/audio.
func (p *Processor) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return &Result{
			Success: false,
			Error:   "no text to synthesize",
		}, nil
	}

	if req.VoicePreset == "" {
		req.VoicePreset = DefaultVoicePreset
	}
	if req.Temperature <= 0 {
		req.Temperature = DefaultTemperature
	}
	if req.OutputPath == "" {
		req.OutputPath = fmt.Sprintf("output/audio/speech_%d.wav", time.Now().Unix())
	}

	if dir := filepath.Dir(req.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &Result{
				Success: false,
				Error:   fmt.Sprintf("failed to create output directory: %v", err),
			}, nil
		}
	}

	p.logger.Info("synthesizing speech",
		zap.String("engine", p.engine.Name()),
		zap.String("voice", req.VoicePreset),
		zap.Int("text_chars", len(req.Text)))

	return p.engine.Synthesize(ctx, req)
}
