package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestParseProbeDuration(t *testing.T) {
	t.Run("ValidDuration", func(t *testing.T) {
		seconds, err := parseProbeDuration("12.345\n")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seconds != 12.345 {
			t.Errorf("expected 12.345, got %f", seconds)
		}
	})

	t.Run("EmptyOutput", func(t *testing.T) {
		if _, err := parseProbeDuration("   \n"); err == nil {
			t.Error("expected error for empty output")
		}
	})

	t.Run("GarbageOutput", func(t *testing.T) {
		if _, err := parseProbeDuration("N/A"); err == nil {
			t.Error("expected error for non-numeric output")
		}
	})
}

func TestComposeStillVideoMissingInput(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p := NewProcessor(logger)
	err := p.ComposeStillVideo(context.Background(), "/nonexistent/image.png", "/nonexistent/audio.wav", filepath.Join(t.TempDir(), "out.mp4"))
	if err == nil {
		t.Fatal("expected error for missing inputs")
	}
}

func TestComposeStillVideo(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p := NewProcessor(logger)
	if !p.Available() {
		t.Skip("ffmpeg not available, skipping compose test")
	}

	dir := t.TempDir()
	imagePath := filepath.Join(dir, "portrait.png")
	audioPath := filepath.Join(dir, "verse.wav")
	outputPath := filepath.Join(dir, "out", "verse.mp4")

	writeTestImage(t, imagePath)
	writeTestWAV(t, audioPath)

	if err := p.ComposeStillVideo(context.Background(), imagePath, audioPath, outputPath); err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("output file does not exist: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output file is empty")
	}

	seconds, err := p.Duration(context.Background(), outputPath)
	if err != nil {
		t.Fatalf("duration probe failed: %v", err)
	}
	if seconds <= 0 {
		t.Errorf("expected positive duration, got %f", seconds)
	}
}

func TestConcatMissingList(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p := NewProcessor(logger)
	err := p.Concat(context.Background(), "/nonexistent/list.txt", filepath.Join(t.TempDir(), "out.mp4"))
	if err == nil {
		t.Fatal("expected error for missing concat list")
	}
}

func TestConcat(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	p := NewProcessor(logger)
	if !p.Available() {
		t.Skip("ffmpeg not available, skipping concat test")
	}

	dir := t.TempDir()
	imagePath := filepath.Join(dir, "portrait.png")
	audioPath := filepath.Join(dir, "verse.wav")
	writeTestImage(t, imagePath)
	writeTestWAV(t, audioPath)

	// Two clips from the same render path, so stream copy is legal.
	clips := []string{
		filepath.Join(dir, "turn_1.mp4"),
		filepath.Join(dir, "turn_2.mp4"),
	}
	for _, clip := range clips {
		if err := p.ComposeStillVideo(context.Background(), imagePath, audioPath, clip); err != nil {
			t.Fatalf("compose failed: %v", err)
		}
	}

	listPath := filepath.Join(dir, "concat_list.txt")
	var list bytes.Buffer
	for _, clip := range clips {
		list.WriteString("file '" + clip + "'\n")
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	outputPath := filepath.Join(dir, "reel", "battle.mp4")
	if err := p.Concat(context.Background(), listPath, outputPath); err != nil {
		t.Fatalf("concat failed: %v", err)
	}

	single, err := p.Duration(context.Background(), clips[0])
	if err != nil {
		t.Fatalf("duration probe failed: %v", err)
	}
	joined, err := p.Duration(context.Background(), outputPath)
	if err != nil {
		t.Fatalf("duration probe failed: %v", err)
	}
	if joined <= single {
		t.Errorf("joined duration %f not longer than a single clip %f", joined, single)
	}
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
}

// writeTestWAV emits one second of 16-bit mono PCM silence with a
// standard RIFF header, enough for ffmpeg to accept as real audio.
func writeTestWAV(t *testing.T, path string) {
	t.Helper()

	const sampleRate = 8000
	dataSize := sampleRate * 2

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write test wav: %v", err)
	}
}
