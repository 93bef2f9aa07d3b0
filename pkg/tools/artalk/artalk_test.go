package artalk

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
)

func TestProbeFailsWithoutToolkit(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	driver := NewDriver(logger)
	driver.toolkitDir = filepath.Join(t.TempDir(), "ARTalk")

	report := driver.Probe()
	if report.Available {
		t.Fatal("probe passed without a toolkit checkout")
	}
	for _, check := range []string{"toolkit", "toolkit_files"} {
		if _, ok := report.Failures[check]; !ok {
			t.Errorf("probe did not report %q, failures: %v", check, report.Failures)
		}
	}
}

func TestInferenceArgs(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	driver := NewDriver(logger)

	args := driver.inferenceArgs("MC_Venom", "/audio/verse.wav", "/out/venom.mp4")
	want := []string{
		"inference.py",
		"--audio", "/audio/verse.wav",
		"--style_motion", "style_02",
		"--shape_id", "mesh",
		"--save_name", "/out/venom.mp4",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("inferenceArgs() = %v, want %v", args, want)
	}

	args = driver.inferenceArgs("Unknown_MC", "/a.wav", "/o.mp4")
	if args[4] != "style_01" {
		t.Errorf("unknown character style = %q, want style_01", args[4])
	}
}

func TestSimulatorWritesDescriptor(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	sim := NewBrowserAnimationSimulator(logger)

	subject := capability.PreparedSubject{SubjectID: "MC_Venom"}
	input := capability.GenerationInput{
		AudioPath:  "/audio/verse.wav",
		OutputPath: filepath.Join(t.TempDir(), "venom.mp4"),
	}

	outputPath, err := sim.Generate(context.Background(), subject, input)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasSuffix(outputPath, ".json") {
		t.Errorf("descriptor path = %q, want .json extension", outputPath)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("descriptor missing: %v", err)
	}
	var descriptor SimulationDescriptor
	if err := json.Unmarshal(data, &descriptor); err != nil {
		t.Fatalf("descriptor is not valid JSON: %v", err)
	}

	if descriptor.Mode != "simulation" {
		t.Errorf("mode = %q, want simulation", descriptor.Mode)
	}
	if descriptor.VideoPath != nil {
		t.Errorf("video_path = %v, want null", *descriptor.VideoPath)
	}
	if descriptor.AnimationType != "browser_lipSync" {
		t.Errorf("animation_type = %q", descriptor.AnimationType)
	}
	if descriptor.AudioPath != "/audio/verse.wav" {
		t.Errorf("audio_path = %q", descriptor.AudioPath)
	}
	if descriptor.CharacterID != "MC_Venom" {
		t.Errorf("character_id = %q", descriptor.CharacterID)
	}
	if !descriptor.Success {
		t.Error("descriptor not marked successful")
	}
}

func TestAdapterFallsBackToDescriptor(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	adapter, driver := NewAdapter(logger, capability.WithStorageDir(t.TempDir()))
	driver.toolkitDir = filepath.Join(t.TempDir(), "nowhere")

	if mode := adapter.Initialize(); mode != capability.ModeSimulation {
		t.Skipf("host has a full ARTalk install, mode %s", mode)
	}

	source := filepath.Join(t.TempDir(), "portrait.png")
	if err := os.WriteFile(source, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := adapter.Prepare("MC_Silk", source); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	audio := filepath.Join(t.TempDir(), "verse.wav")
	if err := os.WriteFile(audio, []byte("wav"), 0644); err != nil {
		t.Fatal(err)
	}

	result := adapter.Generate(context.Background(), "MC_Silk", capability.GenerationInput{
		AudioPath:  audio,
		OutputPath: filepath.Join(t.TempDir(), "silk.mp4"),
	})

	if !result.Success {
		t.Fatalf("Generate failed: %s", result.Diagnostic)
	}
	if result.Mode != capability.ModeSimulation {
		t.Errorf("mode = %s, want simulation", result.Mode)
	}
	if result.FallbackReason != capability.FallbackUnavailable {
		t.Errorf("fallback reason = %q, want unavailable", result.FallbackReason)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Errorf("descriptor artifact missing: %v", err)
	}
}
