package drawthings

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	logger, _ := zap.NewDevelopment()
	c := NewClient(logger)
	c.BaseURL = baseURL
	return c
}

func TestAvailable(t *testing.T) {
	// Any response counts, even an error page.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	client := testClient(server.URL)

	if !client.Available(context.Background()) {
		t.Error("responding server reported unavailable")
	}

	server.Close()
	if client.Available(context.Background()) {
		t.Error("closed server reported available")
	}
}

func TestGeneratePortrait(t *testing.T) {
	imageBytes := []byte("\x89PNG fake image body")

	var gotRequest txt2imgRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdapi/v1/txt2img" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString(imageBytes)},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	client.Model = "portrait_test.ckpt"

	output := filepath.Join(t.TempDir(), "portraits", "mc_razor.png")
	if err := client.GeneratePortrait(context.Background(), "cyberpunk battle rapper", output); err != nil {
		t.Fatalf("GeneratePortrait failed: %v", err)
	}

	if gotRequest.Prompt != "cyberpunk battle rapper" {
		t.Errorf("prompt = %q", gotRequest.Prompt)
	}
	if gotRequest.Width != PortraitWidth || gotRequest.Height != PortraitHeight {
		t.Errorf("size = %dx%d, want %dx%d", gotRequest.Width, gotRequest.Height, PortraitWidth, PortraitHeight)
	}
	if gotRequest.SamplerName != defaultSampler || gotRequest.GuidanceScale != defaultGuidance {
		t.Errorf("unexpected sampler parameters: %+v", gotRequest)
	}
	if gotRequest.Model != "portrait_test.ckpt" {
		t.Errorf("model = %q", gotRequest.Model)
	}
	if gotRequest.BatchSize != 1 {
		t.Errorf("batch size = %d, want 1", gotRequest.BatchSize)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("saved image missing: %v", err)
	}
	if string(data) != string(imageBytes) {
		t.Error("saved image does not match response payload")
	}
}

func TestGeneratePortraitDataURLPrefix(t *testing.T) {
	imageBytes := []byte("prefixed image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{"data:image/png;base64," + base64.StdEncoding.EncodeToString(imageBytes)},
		})
	}))
	defer server.Close()

	output := filepath.Join(t.TempDir(), "portrait.png")
	if err := testClient(server.URL).GeneratePortrait(context.Background(), "prompt", output); err != nil {
		t.Fatalf("GeneratePortrait failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(imageBytes) {
		t.Error("data URL prefix was not stripped")
	}
}

func TestGeneratePortraitServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading checkpoint", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := testClient(server.URL).GeneratePortrait(context.Background(), "prompt", filepath.Join(t.TempDir(), "p.png"))
	if err == nil {
		t.Fatal("expected error from server failure")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error %q does not carry the status code", err)
	}
}

func TestGeneratePortraitNoImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"images": []string{}})
	}))
	defer server.Close()

	err := testClient(server.URL).GeneratePortrait(context.Background(), "prompt", filepath.Join(t.TempDir(), "p.png"))
	if err == nil {
		t.Fatal("expected error for empty image list")
	}
	if !strings.Contains(err.Error(), "no images") {
		t.Errorf("error = %q", err)
	}
}

func TestGeneratePortraitEmptyPrompt(t *testing.T) {
	err := testClient("http://127.0.0.1:1").GeneratePortrait(context.Background(), "   ", filepath.Join(t.TempDir(), "p.png"))
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
