package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type fakeEngine struct {
	lastRequest Request
	result      *Result
	calls       int
}

func (f *fakeEngine) Name() string    { return "fake" }
func (f *fakeEngine) Available() bool { return true }

func (f *fakeEngine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	f.lastRequest = req
	if f.result != nil {
		return f.result, nil
	}
	return &Result{Success: true, OutputFile: req.OutputPath}, nil
}

func TestGenerateRejectsEmptyText(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := &fakeEngine{}
	processor := NewProcessor(logger, engine)

	for _, text := range []string{"", "   ", "\n\t"} {
		result, err := processor.Generate(context.Background(), Request{Text: text})
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if result.Success {
			t.Errorf("expected failure for text %q", text)
		}
		if result.Error == "" {
			t.Errorf("expected diagnostic for text %q", text)
		}
	}
	if engine.calls != 0 {
		t.Errorf("engine invoked %d times for empty text", engine.calls)
	}
}

func TestGenerateFillsDefaults(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := &fakeEngine{}
	processor := NewProcessor(logger, engine)

	output := filepath.Join(t.TempDir(), "speech.wav")
	result, err := processor.Generate(context.Background(), Request{
		Text:       "Yo, check the mic",
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.Error)
	}

	if engine.lastRequest.VoicePreset != DefaultVoicePreset {
		t.Errorf("voice preset = %q, want %q", engine.lastRequest.VoicePreset, DefaultVoicePreset)
	}
	if engine.lastRequest.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", engine.lastRequest.Temperature, DefaultTemperature)
	}
	if engine.lastRequest.OutputPath != output {
		t.Errorf("output path = %q, want %q", engine.lastRequest.OutputPath, output)
	}
}

func TestGenerateKeepsExplicitSettings(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := &fakeEngine{}
	processor := NewProcessor(logger, engine)

	_, err := processor.Generate(context.Background(), Request{
		Text:        "line one",
		VoicePreset: "v2/en_speaker_9",
		Temperature: 0.4,
		OutputPath:  filepath.Join(t.TempDir(), "a.wav"),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if engine.lastRequest.VoicePreset != "v2/en_speaker_9" {
		t.Errorf("voice preset overwritten: %q", engine.lastRequest.VoicePreset)
	}
	if engine.lastRequest.Temperature != 0.4 {
		t.Errorf("temperature overwritten: %v", engine.lastRequest.Temperature)
	}
}

func TestGenerateCreatesOutputDir(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	processor := NewProcessor(logger, &fakeEngine{})

	output := filepath.Join(t.TempDir(), "nested", "audio", "speech.wav")
	result, err := processor.Generate(context.Background(), Request{
		Text:       "hello",
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Generate failed: %s", result.Error)
	}

	if _, err := os.Stat(filepath.Dir(output)); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestParseScriptReport(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   scriptReport
	}{
		{
			name: "full success",
			output: "Generating audio with voice: v2/en_speaker_6\n" +
				"SUCCESS\n" +
				"File: /tmp/out.wav\n" +
				"Size: 480044 bytes\n" +
				"Duration: 10.0 seconds\n" +
				"Sample rate: 24000 Hz\n",
			want: scriptReport{
				success:    true,
				file:       "/tmp/out.wav",
				duration:   10.0,
				sampleRate: 24000,
			},
		},
		{
			name:   "error line",
			output: "Loading model\nERROR: model weights not found\n",
			want:   scriptReport{errorLine: "model weights not found"},
		},
		{
			name:   "no marker",
			output: "some unrelated chatter\n",
			want:   scriptReport{},
		},
		{
			name:   "success without detail lines",
			output: "SUCCESS\n",
			want:   scriptReport{success: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseScriptReport(tt.output)
			if got != tt.want {
				t.Errorf("parseScriptReport() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScriptEngineUnavailableWithoutScript(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewScriptEngine(logger)
	engine.script = filepath.Join(t.TempDir(), "missing.py")

	if engine.Available() {
		t.Error("engine reports available with missing script")
	}
}

func TestBarkServerSynthesizeBase64(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt fake audio payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			http.NotFound(w, r)
			return
		}
		var req barkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Text == "" || req.VoicePreset == "" {
			http.Error(w, "missing fields", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(barkResponse{
			Success:     true,
			AudioBase64: base64.StdEncoding.EncodeToString(audio),
			Duration:    2.5,
			SampleRate:  24000,
		})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	engine := NewBarkServer(logger, server.URL)

	output := filepath.Join(t.TempDir(), "speech.wav")
	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "test line",
		VoicePreset: DefaultVoicePreset,
		Temperature: DefaultTemperature,
		OutputPath:  output,
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Synthesize failed: %s", result.Error)
	}
	if result.Duration != 2.5 {
		t.Errorf("duration = %v, want 2.5", result.Duration)
	}

	written, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(written) != string(audio) {
		t.Error("written audio does not match payload")
	}
}

func TestBarkServerSynthesizeServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(barkResponse{Success: false, Error: "model not loaded"})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	engine := NewBarkServer(logger, server.URL)

	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "test",
		VoicePreset: DefaultVoicePreset,
		OutputPath:  filepath.Join(t.TempDir(), "x.wav"),
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if result.Success {
		t.Error("expected failure from server error")
	}
	if result.Error != "model not loaded" {
		t.Errorf("error = %q, want server diagnostic", result.Error)
	}
}

func TestBarkServerUnavailable(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewBarkServer(logger, "http://127.0.0.1:1")

	if engine.Available() {
		t.Error("engine reports available with unreachable server")
	}
}
