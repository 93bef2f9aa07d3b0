package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// IndexTTSEngine drives an IndexTTS-2 server through its gradio API.
// Unlike Bark, IndexTTS clones a reference speaker instead of using
// named presets, so the request's voice preset resolves to a wav file
// under the reference audio directory.
type IndexTTSEngine struct {
	logger  *zap.Logger
	baseURL string
	refDir  string
	fnIndex int
	client  *http.Client
}

// NewIndexTTSEngine creates an IndexTTS client. Configurable through
// tts.indextts_url (default http://localhost:7860), tts.ref_audio_dir
// (default assets/ref_audio) and tts.indextts_fn_index for servers
// whose synthesis function is not the first gradio endpoint.
func NewIndexTTSEngine(logger *zap.Logger) *IndexTTSEngine {
	e := &IndexTTSEngine{
		logger:  logger,
		baseURL: "http://localhost:7860",
		refDir:  filepath.Join("assets", "ref_audio"),
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}

	if url := viper.GetString("tts.indextts_url"); url != "" {
		e.baseURL = strings.TrimRight(url, "/")
	}
	if dir := viper.GetString("tts.ref_audio_dir"); dir != "" {
		e.refDir = dir
	}
	if idx := viper.GetInt("tts.indextts_fn_index"); idx > 0 {
		e.fnIndex = idx
	}

	return e
}

func (e *IndexTTSEngine) Name() string {
	return "indextts2"
}

// Available checks the gradio config endpoint with a short deadline.
func (e *IndexTTSEngine) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/config", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Debug("indextts server unreachable", zap.String("url", e.baseURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Synthesize uploads the reference voice, invokes the synthesis
// function and downloads the produced audio to req.OutputPath.
func (e *IndexTTSEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	refPath := e.referencePath(req.VoicePreset)
	if _, err := os.Stat(refPath); err != nil {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("no reference audio for voice %q at %s", req.VoicePreset, refPath),
		}, nil
	}

	fileData, err := e.upload(ctx, refPath)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("reference upload failed: %v", err)}, nil
	}

	serverPath, err := e.predict(ctx, fileData, req)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	if err := e.download(ctx, serverPath, req.OutputPath); err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return &Result{Success: false, Error: fmt.Sprintf("audio file not written: %v", err)}, nil
	}
	if info.Size() == 0 {
		return &Result{Success: false, Error: "audio file is empty"}, nil
	}

	e.logger.Info("speech synthesized",
		zap.String("engine", e.Name()),
		zap.String("output", req.OutputPath),
		zap.Int64("size_bytes", info.Size()))

	return &Result{
		Success:    true,
		OutputFile: req.OutputPath,
		SizeBytes:  info.Size(),
	}, nil
}

// referencePath maps a voice preset onto a speaker wav. Slashes in
// Bark-style preset names flatten to underscores so the same character
// roster works across engines.
func (e *IndexTTSEngine) referencePath(preset string) string {
	name := strings.ReplaceAll(preset, "/", "_")
	if filepath.Ext(name) == "" {
		name += ".wav"
	}
	return filepath.Join(e.refDir, name)
}

// upload pushes the reference wav to the server and returns the gradio
// FileData descriptor the synthesis call expects.
func (e *IndexTTSEngine) upload(ctx context.Context, path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy reference audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/gradio_api/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var stored []string
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("upload response carried no file path")
	}

	return map[string]interface{}{
		"path":      stored[0],
		"orig_name": filepath.Base(path),
		"meta":      map[string]string{"_type": "gradio.FileData"},
	}, nil
}

// predict invokes the synthesis function and returns the server-side
// path of the produced audio.
func (e *IndexTTSEngine) predict(ctx context.Context, fileData map[string]interface{}, req Request) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"data":         []interface{}{fileData, req.Text, req.Temperature},
		"event_data":   nil,
		"fn_index":     e.fnIndex,
		"session_hash": fmt.Sprintf("%d", time.Now().UnixNano()),
	})
	if err != nil {
		return "", fmt.Errorf("encode synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/gradio_api/predict", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("indextts server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var pr struct {
		Data []interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode synthesis response: %w", err)
	}

	path := extractAudioPath(pr.Data)
	if path == "" {
		return "", fmt.Errorf("synthesis response carried no audio path")
	}
	return path, nil
}

// extractAudioPath digs the audio path out of a gradio data array. The
// shape varies between server versions: a bare path string, a FileData
// map, or an update wrapper around one.
func extractAudioPath(items []interface{}) string {
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if strings.HasSuffix(v, ".wav") {
				return v
			}
		case map[string]interface{}:
			if inner, ok := v["value"].(map[string]interface{}); ok && v["__type__"] == "update" {
				if path, ok := inner["path"].(string); ok && path != "" {
					return path
				}
			}
			if path, ok := v["path"].(string); ok && path != "" {
				return path
			}
		}
	}
	return ""
}

// download fetches a server-side file through the gradio file route.
func (e *IndexTTSEngine) download(ctx context.Context, serverPath, outputPath string) error {
	url := serverPath
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = e.baseURL + "/gradio_api/file=" + serverPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("save audio: %w", err)
	}
	return nil
}
