// Package dalle generates character portraits through the OpenAI image
// API.
package dalle

import (
	"bytes"
	"context"
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

// Generation parameters. Portraits are requested at the highest
// quality the API offers; the size matches the placeholder renderer.
const (
	defaultAPIURL = "https://api.openai.com/v1/images/generations"

	Model     = "dall-e-3"
	ImageSize = "1024x1024"
	Quality   = "hd"
	ImageStyle = "vivid"
)

// Client calls the image generation API. Generation can take a while,
// so the HTTP client carries a long timeout.
type Client struct {
	logger *zap.Logger
	apiURL string
	apiKey string
	client *http.Client
}

// NewClient creates an API client. The key comes from the
// OPENAI_API_KEY environment variable; the endpoint can be overridden
// through config (dalle.api_url) for proxies.
func NewClient(logger *zap.Logger) *Client {
	apiURL := viper.GetString("dalle.api_url")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Client{
		logger: logger,
		apiURL: apiURL,
		apiKey: os.Getenv("OPENAI_API_KEY"),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Available reports whether a credential is configured. No network
// call is made; a bad key surfaces as a generation error.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

type generationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeneratePortrait requests one image for the prompt and downloads it
// into outputDir as <character>_<timestamp>.png. It returns the saved
// path.
func (c *Client) GeneratePortrait(ctx context.Context, characterName, prompt, outputDir string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("empty portrait prompt")
	}

	payload, err := json.Marshal(generationRequest{
		Model:   Model,
		Prompt:  prompt,
		N:       1,
		Size:    ImageSize,
		Quality: Quality,
		Style:   ImageStyle,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("requesting portrait generation",
		zap.String("character", characterName),
		zap.Int("prompt_chars", len(prompt)))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("image API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gr generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("failed to decode API response: %w", err)
	}
	if gr.Error != nil {
		return "", fmt.Errorf("image API error: %s", gr.Error.Message)
	}
	if len(gr.Data) == 0 || gr.Data[0].URL == "" {
		return "", fmt.Errorf("image API response carried no image URL")
	}

	outputPath := filepath.Join(outputDir, PortraitFilename(characterName, time.Now()))
	if err := c.download(ctx, gr.Data[0].URL, outputPath); err != nil {
		return "", err
	}

	c.logger.Info("portrait downloaded",
		zap.String("character", characterName),
		zap.String("output", outputPath))

	return outputPath, nil
}

func (c *Client) download(ctx context.Context, url, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("downloaded image is empty")
	}
	return nil
}

// PortraitFilename builds the stored name for a character portrait.
func PortraitFilename(characterName string, ts time.Time) string {
	slug := strings.ToLower(strings.ReplaceAll(characterName, " ", "_"))
	return fmt.Sprintf("%s_%d.png", slug, ts.Unix())
}
