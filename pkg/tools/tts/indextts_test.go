package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newIndexTTSFixture(t *testing.T, predictPayload map[string]any) (*IndexTTSEngine, *httptest.Server, *[]interface{}) {
	t.Helper()

	audio := []byte("RIFF....WAVEfmt cloned voice payload")
	var gotData []interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"4.44.0"}`))
	})
	mux.HandleFunc("/gradio_api/upload", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("files"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]string{"/gradio/tmp/ref.wav"})
	})
	mux.HandleFunc("/gradio_api/predict", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data []interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotData = req.Data
		json.NewEncoder(w).Encode(predictPayload)
	})
	mux.HandleFunc("/gradio_api/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/gradio_api/file=") {
			w.Write(audio)
			return
		}
		http.NotFound(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	logger, _ := zap.NewDevelopment()
	engine := NewIndexTTSEngine(logger)
	engine.baseURL = server.URL
	engine.refDir = t.TempDir()

	ref := filepath.Join(engine.refDir, "v2_en_speaker_6.wav")
	if err := os.WriteFile(ref, []byte("reference speaker"), 0644); err != nil {
		t.Fatal(err)
	}

	return engine, server, &gotData
}

func TestIndexTTSSynthesize(t *testing.T) {
	engine, _, gotData := newIndexTTSFixture(t, map[string]any{
		"data": []any{map[string]any{"path": "/gradio/out/audio.wav"}},
	})

	output := filepath.Join(t.TempDir(), "speech.wav")
	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "clone this voice",
		VoicePreset: "v2/en_speaker_6",
		Temperature: 0.7,
		OutputPath:  output,
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Synthesize failed: %s", result.Error)
	}
	if result.OutputFile != output || result.SizeBytes == 0 {
		t.Errorf("result = %+v", result)
	}

	if len(*gotData) != 3 {
		t.Fatalf("predict data len = %d, want 3", len(*gotData))
	}
	ref, ok := (*gotData)[0].(map[string]interface{})
	if !ok || ref["path"] != "/gradio/tmp/ref.wav" {
		t.Errorf("reference descriptor = %+v", (*gotData)[0])
	}
	if (*gotData)[1] != "clone this voice" {
		t.Errorf("text = %v", (*gotData)[1])
	}

	if _, err := os.Stat(output); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestIndexTTSUpdateWrappedResponse(t *testing.T) {
	engine, _, _ := newIndexTTSFixture(t, map[string]any{
		"data": []any{map[string]any{
			"__type__": "update",
			"value":    map[string]any{"path": "/gradio/out/wrapped.wav"},
		}},
	})

	output := filepath.Join(t.TempDir(), "speech.wav")
	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "wrapped response",
		VoicePreset: "v2/en_speaker_6",
		OutputPath:  output,
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Synthesize failed: %s", result.Error)
	}
}

func TestIndexTTSNoAudioInResponse(t *testing.T) {
	engine, _, _ := newIndexTTSFixture(t, map[string]any{
		"data": []any{"Synthesis complete"},
	})

	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "no audio back",
		VoicePreset: "v2/en_speaker_6",
		OutputPath:  filepath.Join(t.TempDir(), "x.wav"),
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if result.Success {
		t.Error("expected failure when response has no audio path")
	}
	if !strings.Contains(result.Error, "no audio path") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestIndexTTSMissingReference(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewIndexTTSEngine(logger)
	engine.refDir = t.TempDir()

	result, err := engine.Synthesize(context.Background(), Request{
		Text:        "no speaker",
		VoicePreset: "v2/en_speaker_6",
		OutputPath:  filepath.Join(t.TempDir(), "x.wav"),
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if result.Success {
		t.Error("expected failure without reference audio")
	}
	if !strings.Contains(result.Error, "v2/en_speaker_6") {
		t.Errorf("error %q does not name the voice", result.Error)
	}
}

func TestIndexTTSAvailable(t *testing.T) {
	engine, server, _ := newIndexTTSFixture(t, map[string]any{"data": []any{}})

	if !engine.Available() {
		t.Error("engine reports unavailable with running server")
	}

	server.Close()
	if engine.Available() {
		t.Error("engine reports available with closed server")
	}
}

func TestReferencePath(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	engine := NewIndexTTSEngine(logger)
	engine.refDir = "refs"

	cases := map[string]string{
		"v2/en_speaker_6": filepath.Join("refs", "v2_en_speaker_6.wav"),
		"narrator.wav":    filepath.Join("refs", "narrator.wav"),
		"queen_bee":       filepath.Join("refs", "queen_bee.wav"),
	}
	for preset, want := range cases {
		if got := engine.referencePath(preset); got != want {
			t.Errorf("referencePath(%q) = %q, want %q", preset, got, want)
		}
	}
}

func TestExtractAudioPath(t *testing.T) {
	cases := []struct {
		name  string
		items []interface{}
		want  string
	}{
		{"bare string", []interface{}{"/out/a.wav"}, "/out/a.wav"},
		{"ignores non-wav strings", []interface{}{"done", "/out/b.wav"}, "/out/b.wav"},
		{"file data map", []interface{}{map[string]interface{}{"path": "/out/c.wav"}}, "/out/c.wav"},
		{
			"update wrapper",
			[]interface{}{map[string]interface{}{
				"__type__": "update",
				"value":    map[string]interface{}{"path": "/out/d.wav"},
			}},
			"/out/d.wav",
		},
		{"nothing usable", []interface{}{42, "text"}, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := extractAudioPath(c.items); got != c.want {
				t.Errorf("extractAudioPath = %q, want %q", got, c.want)
			}
		})
	}
}

func TestDefaultEngineSelection(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	reset := func() {
		viper.Set("tts.engine", "")
		viper.Set("tts.server_url", "")
	}
	t.Cleanup(reset)

	reset()
	if _, ok := NewDefaultEngine(logger).(*ScriptEngine); !ok {
		t.Error("default engine is not the script engine")
	}

	viper.Set("tts.server_url", "http://localhost:5001")
	if _, ok := NewDefaultEngine(logger).(*BarkServer); !ok {
		t.Error("server_url does not select the bark server")
	}

	viper.Set("tts.engine", "indextts2")
	if _, ok := NewDefaultEngine(logger).(*IndexTTSEngine); !ok {
		t.Error("tts.engine=indextts2 does not select the indextts engine")
	}

	viper.Set("tts.engine", "script")
	if _, ok := NewDefaultEngine(logger).(*ScriptEngine); !ok {
		t.Error("tts.engine=script does not select the script engine")
	}
}
