// Package image renders placeholder character portraits when no image
// API is reachable.
package image

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/image/font"
)

// Portrait dimensions match the image API output so downstream
// consumers treat placeholders and real portraits the same way.
const (
	PortraitWidth  = 1024
	PortraitHeight = 1024
)

// Generator draws stylized placeholder portraits.
type Generator struct {
	logger *zap.Logger
}

// Portrait describes one rendered image.
type Portrait struct {
	ImageFile   string `json:"image_file"`
	Prompt      string `json:"prompt"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Placeholder bool   `json:"placeholder"`
}

// NewGenerator creates a portrait generator.
func NewGenerator(logger *zap.Logger) *Generator {
	return &Generator{
		logger: logger,
	}
}

// GeneratePortrait renders a placeholder portrait for the named
// character. Rendering is seeded by the character name, so repeated
// runs produce the same image for the same character.
func (g *Generator) GeneratePortrait(name, prompt, outputFile string) (*Portrait, error) {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rng := rand.New(rand.NewSource(nameSeed(name)))

	dc := gg.NewContext(PortraitWidth, PortraitHeight)

	bg := color.RGBA{
		R: uint8(40 + rng.Intn(120)),
		G: uint8(40 + rng.Intn(120)),
		B: uint8(40 + rng.Intn(120)),
		A: 255,
	}
	dc.SetColor(bg)
	dc.Clear()

	// Translucent accent circles give each portrait a distinct look.
	for i := 0; i < 20; i++ {
		x := rng.Float64() * PortraitWidth
		y := rng.Float64() * PortraitHeight
		radius := 30.0 + rng.Float64()*120.0

		accent := color.RGBA{
			R: uint8(rng.Intn(256)),
			G: uint8(rng.Intn(256)),
			B: uint8(rng.Intn(256)),
			A: 90,
		}
		dc.SetColor(accent)
		dc.DrawCircle(x, y, radius)
		dc.Fill()
	}

	g.applyFont(dc, 96)

	w, h := dc.MeasureString(name)
	x := (PortraitWidth - w) / 2
	y := (PortraitHeight - h) / 2

	// Shadowed text stays readable on any background.
	dc.SetRGB(0, 0, 0)
	dc.DrawString(name, x+3, y+3)
	dc.DrawString(name, x-3, y-3)
	dc.DrawString(name, x+3, y-3)
	dc.DrawString(name, x-3, y+3)

	dc.SetRGB(1, 1, 1)
	dc.DrawString(name, x, y)

	if err := dc.SavePNG(outputFile); err != nil {
		return nil, fmt.Errorf("failed to save portrait: %w", err)
	}

	g.logger.Info("placeholder portrait rendered",
		zap.String("character", name),
		zap.String("output", outputFile))

	return &Portrait{
		ImageFile:   outputFile,
		Prompt:      prompt,
		Width:       PortraitWidth,
		Height:      PortraitHeight,
		Placeholder: true,
	}, nil
}

// applyFont loads the configured truetype face; without one the
// context keeps its builtin bitmap face, which is small but renders.
func (g *Generator) applyFont(dc *gg.Context, size float64) {
	var face font.Face

	fontPath := viper.GetString("image.font_path")
	if fontPath == "" {
		return
	}

	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		g.logger.Debug("portrait font unreadable", zap.String("path", fontPath), zap.Error(err))
		return
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		g.logger.Debug("portrait font unparsable", zap.String("path", fontPath), zap.Error(err))
		return
	}

	face = truetype.NewFace(parsed, &truetype.Options{Size: size})
	dc.SetFontFace(face)
}

func nameSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
