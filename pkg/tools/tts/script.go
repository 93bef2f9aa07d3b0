package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ScriptEngine runs the bundled Bark generation script as a child
// process. The script prints a SUCCESS marker followed by File/Size/
// Duration/Sample rate lines, or an ERROR line and exit code 1.
type ScriptEngine struct {
	logger  *zap.Logger
	python  string
	script  string
	timeout time.Duration
}

// NewScriptEngine creates a script-backed engine. The interpreter,
// script path and timeout can be overridden through config (tts.python,
// tts.script, tts.timeout_seconds). CPU synthesis takes minutes for
// long verses, so the default timeout is generous.
func NewScriptEngine(logger *zap.Logger) *ScriptEngine {
	e := &ScriptEngine{
		logger:  logger,
		python:  "python3",
		script:  "scripts/bark_generate.py",
		timeout: 600 * time.Second,
	}

	if bin := viper.GetString("tts.python"); bin != "" {
		e.python = bin
	}
	if path := viper.GetString("tts.script"); path != "" {
		e.script = path
	}
	if secs := viper.GetInt("tts.timeout_seconds"); secs > 0 {
		e.timeout = time.Duration(secs) * time.Second
	}

	return e
}

func (e *ScriptEngine) Name() string {
	return "bark-script"
}

// Available reports whether the generation script and its interpreter
// are both present. It does not import the model; that only happens on
// the first real synthesis.
func (e *ScriptEngine) Available() bool {
	if _, err := os.Stat(e.script); err != nil {
		e.logger.Debug("tts script missing", zap.String("script", e.script), zap.Error(err))
		return false
	}
	if _, err := exec.LookPath(e.python); err != nil {
		e.logger.Debug("python interpreter missing", zap.String("python", e.python), zap.Error(err))
		return false
	}
	return true
}

// Synthesize invokes the generation script with an argument vector and
// parses its report. A failed run produces a Result with the script's
// diagnostic, not a Go error.
func (e *ScriptEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		e.script,
		req.Text,
		req.OutputPath,
		"--voice", req.VoicePreset,
		"--temp", strconv.FormatFloat(req.Temperature, 'f', 2, 64),
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.python, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	e.logger.Info("running speech generation script",
		zap.String("script", e.script),
		zap.String("voice", req.VoicePreset),
		zap.String("output", req.OutputPath))

	runErr := cmd.Run()
	report := parseScriptReport(out.String())

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &Result{
				Success: false,
				Error:   fmt.Sprintf("speech script timed out after %s", e.timeout),
			}, nil
		}
		diagnostic := report.errorLine
		if diagnostic == "" {
			diagnostic = strings.TrimSpace(out.String())
		}
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("speech script failed: %v: %s", runErr, diagnostic),
		}, nil
	}

	if !report.success {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("speech script reported no success marker: %s", strings.TrimSpace(out.String())),
		}, nil
	}

	outputPath := report.file
	if outputPath == "" {
		outputPath = req.OutputPath
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("audio file not written: %v", err),
		}, nil
	}
	if info.Size() == 0 {
		return &Result{
			Success: false,
			Error:   "audio file is empty",
		}, nil
	}

	sampleRate := report.sampleRate
	if sampleRate == 0 {
		sampleRate = OutputSampleRate
	}

	e.logger.Info("speech synthesized",
		zap.String("output", outputPath),
		zap.Int64("size_bytes", info.Size()),
		zap.Float64("duration", report.duration))

	return &Result{
		Success:    true,
		OutputFile: outputPath,
		SizeBytes:  info.Size(),
		Duration:   report.duration,
		SampleRate: sampleRate,
	}, nil
}

type scriptReport struct {
	success    bool
	file       string
	duration   float64
	sampleRate int
	errorLine  string
}

// parseScriptReport scans the script's line-oriented output. The
// marker lines always start the line, so progress chatter before them
// is ignored.
func parseScriptReport(output string) scriptReport {
	var report scriptReport

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "SUCCESS":
			report.success = true
		case strings.HasPrefix(line, "File: "):
			report.file = strings.TrimSpace(strings.TrimPrefix(line, "File: "))
		case strings.HasPrefix(line, "Duration: "):
			value := strings.TrimSuffix(strings.TrimPrefix(line, "Duration: "), " seconds")
			if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				report.duration = d
			}
		case strings.HasPrefix(line, "Sample rate: "):
			value := strings.TrimSuffix(strings.TrimPrefix(line, "Sample rate: "), " Hz")
			if sr, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				report.sampleRate = sr
			}
		case strings.HasPrefix(line, "ERROR: "):
			report.errorLine = strings.TrimPrefix(line, "ERROR: ")
		}
	}

	return report
}
