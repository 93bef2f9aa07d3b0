// Package verse writes battle rap verses through a local Ollama
// server. The server is optional; callers fall back to scripted verses
// when it is not running.
package verse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultBars = 8

// Writer calls the Ollama generate API.
type Writer struct {
	BaseURL    string
	Model      string
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// NewWriter creates a verse writer. Endpoint and model come from
// config (verse.api_url, verse.model) with local defaults.
func NewWriter(logger *zap.Logger) *Writer {
	baseURL := viper.GetString("verse.api_url")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := viper.GetString("verse.model")
	if model == "" {
		model = "llama3"
	}

	return &Writer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Logger:  logger,
		HTTPClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// VerseRequest describes one verse to write.
type VerseRequest struct {
	Character string
	Persona   string
	Opponent  string
	Topic     string
	Round     int
	Bars      int
}

// Verse is a written verse, line by line.
type Verse struct {
	Character string   `json:"character"`
	Round     int      `json:"round"`
	Lines     []string `json:"lines"`
	Text      string   `json:"text"`
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
}

// Available probes the tags endpoint with a short deadline.
func (w *Writer) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, w.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		w.Logger.Debug("ollama unreachable", zap.String("url", w.BaseURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

const systemPrompt = `You are a battle rap ghostwriter. You write sharp, rhythmic verses in the voice of the character you are given. Rules:
1. Every bar lands on beat and rhymes with its pair.
2. Stay in character; use the persona's attitude and vocabulary.
3. Direct the bars at the named opponent and the round's topic.
4. No stage directions, no explanations.
5. Return ONLY a JSON array of bars, like ["bar one", "bar two"].`

// WriteVerse asks the model for one verse and parses the returned
// bars.
func (w *Writer) WriteVerse(ctx context.Context, req VerseRequest) (*Verse, error) {
	if req.Character == "" {
		return nil, fmt.Errorf("verse request needs a character")
	}
	bars := req.Bars
	if bars <= 0 {
		bars = DefaultBars
	}

	userPrompt := fmt.Sprintf(`Write a %d-bar battle rap verse.

Character: %s
Persona: %s
Opponent: %s
Topic: %s
Round: %d

Return only the JSON array of bars.`,
		bars, req.Character, req.Persona, req.Opponent, req.Topic, req.Round)

	payload, err := json.Marshal(generateRequest{
		Model:  w.Model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature":    0.7,
			"top_p":          0.9,
			"repeat_penalty": 1.1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}

	endpoint := w.BaseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	w.Logger.Info("requesting verse",
		zap.String("model", w.Model),
		zap.String("character", req.Character),
		zap.Int("round", req.Round))

	resp, err := w.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if strings.TrimSpace(gr.Response) == "" {
		return nil, fmt.Errorf("ollama returned an empty response")
	}

	lines := parseBars(gr.Response)
	w.Logger.Info("verse written",
		zap.String("character", req.Character),
		zap.Int("bars", len(lines)))

	return &Verse{
		Character: req.Character,
		Round:     req.Round,
		Lines:     lines,
		Text:      strings.Join(lines, "\n"),
	}, nil
}

// parseBars extracts the bars from the model response. Models do not
// always honor the JSON-only instruction, so parsing degrades from a
// clean JSON array to an embedded one to plain line splitting.
func parseBars(response string) []string {
	text := strings.TrimSpace(response)

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		var bars []string
		if err := json.Unmarshal([]byte(text), &bars); err == nil {
			return bars
		}
	}

	jsonStart := strings.Index(text, "[")
	jsonEnd := strings.LastIndex(text, "]")
	if jsonStart != -1 && jsonEnd > jsonStart {
		var bars []string
		if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &bars); err == nil {
			return bars
		}
	}

	var bars []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "]") {
			continue
		}
		for i := 1; i <= 50; i++ {
			trimmed = strings.TrimPrefix(trimmed, fmt.Sprintf("%d. ", i))
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			bars = append(bars, trimmed)
		}
	}

	if len(bars) == 0 {
		bars = []string{text}
	}
	return bars
}
