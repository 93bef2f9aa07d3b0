package image

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestGeneratePortrait(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	generator := NewGenerator(logger)

	output := filepath.Join(t.TempDir(), "portraits", "mc_razor.png")
	portrait, err := generator.GeneratePortrait("MC Razor", "cyberpunk rapper", output)
	if err != nil {
		t.Fatalf("GeneratePortrait failed: %v", err)
	}

	if !portrait.Placeholder {
		t.Error("portrait not marked as placeholder")
	}
	if portrait.Width != PortraitWidth || portrait.Height != PortraitHeight {
		t.Errorf("portrait size = %dx%d, want %dx%d",
			portrait.Width, portrait.Height, PortraitWidth, PortraitHeight)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("portrait file missing: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("portrait is not valid PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != PortraitWidth || bounds.Dy() != PortraitHeight {
		t.Errorf("decoded size = %dx%d, want %dx%d",
			bounds.Dx(), bounds.Dy(), PortraitWidth, PortraitHeight)
	}
}

func TestGeneratePortraitDeterministic(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	generator := NewGenerator(logger)
	dir := t.TempDir()

	first := filepath.Join(dir, "first.png")
	second := filepath.Join(dir, "second.png")

	if _, err := generator.GeneratePortrait("MC Venom", "", first); err != nil {
		t.Fatalf("first render failed: %v", err)
	}
	if _, err := generator.GeneratePortrait("MC Venom", "", second); err != nil {
		t.Fatalf("second render failed: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same character produced different portraits")
	}

	other := filepath.Join(dir, "other.png")
	if _, err := generator.GeneratePortrait("MC Silk", "", other); err != nil {
		t.Fatalf("third render failed: %v", err)
	}
	c, err := os.ReadFile(other)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, c) {
		t.Error("different characters produced identical portraits")
	}
}
