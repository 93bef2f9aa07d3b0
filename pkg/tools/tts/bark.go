package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BarkServer talks to a locally hosted Bark synthesis server over HTTP.
// Synthesis on CPU is slow, so the client carries a long timeout; the
// health probe stays short.
type BarkServer struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

// NewBarkServer creates a client for the given server URL.
func NewBarkServer(logger *zap.Logger, baseURL string) *BarkServer {
	if baseURL == "" {
		baseURL = "http://localhost:5001"
	}
	return &BarkServer{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

func (b *BarkServer) Name() string {
	return "bark-server"
}

// Available checks the server health endpoint with a short deadline.
func (b *BarkServer) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Debug("bark server unreachable", zap.String("url", b.baseURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

type barkRequest struct {
	Text        string  `json:"text"`
	VoicePreset string  `json:"voice_preset"`
	Temperature float64 `json:"temperature"`
}

type barkResponse struct {
	Success     bool    `json:"success"`
	AudioBase64 string  `json:"audio_base64,omitempty"`
	AudioURL    string  `json:"audio_url,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Synthesize posts the text to the server and stores the returned audio
// at req.OutputPath. The server may answer with inline base64 audio or
// a download URL; both paths end with a non-empty file on disk.
func (b *BarkServer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(barkRequest{
		Text:        req.Text,
		VoicePreset: req.VoicePreset,
		Temperature: req.Temperature,
	})
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to encode request: %v", err)}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to build request: %v", err)}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("bark server request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("bark server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}, nil
	}

	var sr barkResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("failed to decode server response: %v", err)}, nil
	}
	if !sr.Success {
		return &Result{Success: false, Error: sr.Error}, nil
	}

	switch {
	case sr.AudioBase64 != "":
		if err := b.saveBase64Audio(sr.AudioBase64, req.OutputPath); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	case sr.AudioURL != "":
		if err := b.downloadAudio(ctx, sr.AudioURL, req.OutputPath); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	default:
		return &Result{Success: false, Error: "server response carried no audio"}, nil
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("audio file not written: %v", err)}, nil
	}
	if info.Size() == 0 {
		return &Result{Success: false, Error: "audio file is empty"}, nil
	}

	sampleRate := sr.SampleRate
	if sampleRate == 0 {
		sampleRate = OutputSampleRate
	}

	b.logger.Info("speech synthesized",
		zap.String("output", req.OutputPath),
		zap.Int64("size_bytes", info.Size()))

	return &Result{
		Success:    true,
		OutputFile: req.OutputPath,
		SizeBytes:  info.Size(),
		Duration:   sr.Duration,
		SampleRate: sampleRate,
	}, nil
}

func (b *BarkServer) saveBase64Audio(encoded, outputPath string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode audio payload: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

func (b *BarkServer) downloadAudio(ctx context.Context, url, outputPath string) error {
	if strings.HasPrefix(url, "/") {
		url = b.baseURL + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to save audio: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("downloaded audio is empty")
	}
	return nil
}
