// Package video assembles per-turn renders into battle-level artifacts:
// an edit manifest that downstream editors can ingest and an ffmpeg
// concat list used to cut the full battle reel.
package video

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ManifestName is the edit manifest written into every battle directory.
const ManifestName = "edit_manifest.json"

// ConcatListName is the ffmpeg concat demuxer input for the battle reel.
const ConcatListName = "concat_list.txt"

// ManifestTurn is one turn's slice of the edit manifest.
type ManifestTurn struct {
	Round     int     `json:"round"`
	Character string  `json:"character"`
	VerseText string  `json:"verse_text,omitempty"`
	AudioFile string  `json:"audio_file,omitempty"`
	VideoFile string  `json:"video_file,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Mode      string  `json:"mode,omitempty"`
}

// Manifest describes a finished battle for downstream editing.
type Manifest struct {
	Battle    string         `json:"battle"`
	CreatedAt string         `json:"created_at"`
	Turns     []ManifestTurn `json:"turns"`
}

// Assembler writes battle-level artifacts from turn outputs.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// WriteManifest writes the edit manifest into battleDir and returns its
// path.
func (a *Assembler) WriteManifest(battleDir, battleName string, turns []ManifestTurn) (string, error) {
	manifest := Manifest{
		Battle:    battleName,
		CreatedAt: time.Now().Format(time.RFC3339),
		Turns:     turns,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	path := filepath.Join(battleDir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	a.logger.Info("Edit manifest written",
		zap.String("path", path),
		zap.Int("turns", len(turns)))
	return path, nil
}

// WriteConcatList writes the concat demuxer input listing every turn
// that produced a video, in the order given. It returns the list path
// and the number of clips listed; zero clips means no list was written.
func (a *Assembler) WriteConcatList(battleDir string, turns []ManifestTurn) (string, int, error) {
	var b strings.Builder
	clips := 0
	for _, turn := range turns {
		if turn.VideoFile == "" {
			continue
		}
		abs, err := filepath.Abs(turn.VideoFile)
		if err != nil {
			return "", 0, fmt.Errorf("resolve clip path: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(abs))
		clips++
	}

	if clips == 0 {
		return "", 0, nil
	}

	path := filepath.Join(battleDir, ConcatListName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", 0, fmt.Errorf("write concat list: %w", err)
	}

	a.logger.Debug("Concat list written",
		zap.String("path", path),
		zap.Int("clips", clips))
	return path, clips, nil
}

// escapeConcatPath escapes single quotes the way the concat demuxer
// expects inside a quoted token.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
