// Package drawthings renders character portraits through a Stable
// Diffusion WebUI compatible API (DrawThings, AUTOMATIC1111). It covers
// hosts that run a local image server instead of holding an API key for
// the hosted one.
package drawthings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Portrait generation defaults. The negative prompt keeps the renders
// usable as lip-sync sources: one face, no close crops, no mangling.
const (
	defaultBaseURL = "http://localhost:7861"

	PortraitWidth  = 768
	PortraitHeight = 768

	defaultSteps          = 20
	defaultSampler        = "DPM++ 2M"
	defaultGuidance       = 7.0
	defaultNegativePrompt = "blurry, distorted, extra limbs, close-up face crop, watermark, text"
)

// Client calls the diffusion server. Requests can take minutes on CPU
// hosts, so the HTTP client carries a long timeout; availability checks
// use their own short deadline instead.
type Client struct {
	BaseURL string
	Model   string
	Logger  *zap.Logger

	HTTPClient *http.Client
}

// NewClient creates a diffusion client. The endpoint and checkpoint come
// from config (image.drawthings_url, image.drawthings_model); an empty
// model leaves the server's loaded checkpoint in place.
func NewClient(logger *zap.Logger) *Client {
	baseURL := viper.GetString("image.drawthings_url")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		BaseURL: baseURL,
		Model:   viper.GetString("image.drawthings_model"),
		Logger:  logger,
		HTTPClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// Available reports whether anything answers at the base URL. Any
// response counts: DrawThings serves no stable root document, so only a
// refused connection means the server is down.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Debug("diffusion server unreachable",
			zap.String("url", c.BaseURL),
			zap.Error(err))
		return false
	}
	resp.Body.Close()
	return true
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	Seed           int     `json:"seed"`
	SamplerName    string  `json:"sampler"`
	GuidanceScale  float64 `json:"cfg_scale"`
	BatchSize      int     `json:"batch_size"`
	Model          string  `json:"model,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// GeneratePortrait renders one portrait for the prompt and writes it to
// outputPath as PNG.
func (c *Client) GeneratePortrait(ctx context.Context, prompt, outputPath string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty portrait prompt")
	}

	payload, err := json.Marshal(txt2imgRequest{
		Prompt:         prompt,
		NegativePrompt: defaultNegativePrompt,
		Width:          PortraitWidth,
		Height:         PortraitHeight,
		Steps:          defaultSteps,
		Seed:           -1,
		SamplerName:    defaultSampler,
		GuidanceScale:  defaultGuidance,
		BatchSize:      1,
		Model:          c.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to encode txt2img request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sdapi/v1/txt2img", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build txt2img request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.Logger.Info("requesting diffusion portrait",
		zap.String("url", c.BaseURL),
		zap.Int("prompt_chars", len(prompt)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("diffusion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("diffusion server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("failed to decode txt2img response: %w", err)
	}
	if len(tr.Images) == 0 {
		return fmt.Errorf("diffusion server returned no images")
	}

	if err := saveBase64Image(tr.Images[0], outputPath); err != nil {
		return err
	}

	c.Logger.Info("diffusion portrait saved", zap.String("output", outputPath))
	return nil
}

// saveBase64Image decodes one image from the response and writes it out.
// Some servers prefix the payload with a data URL header.
func saveBase64Image(data, outputPath string) error {
	data = strings.TrimPrefix(data, "data:image/png;base64,")

	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("failed to decode image data: %w", err)
	}
	if len(img) == 0 {
		return fmt.Errorf("decoded image is empty")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, img, 0644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
