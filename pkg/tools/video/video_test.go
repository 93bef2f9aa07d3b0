package video

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(zap.NewNop())

	turns := []ManifestTurn{
		{Round: 1, Character: "MC_Razor", AudioFile: "round_1.wav", VideoFile: "round_1.mp4", Duration: 4.2, Mode: "simulation"},
		{Round: 2, Character: "MC_Venom", AudioFile: "round_2.wav"},
	}

	path, err := a.WriteManifest(dir, "demo_battle", turns)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if filepath.Base(path) != ManifestName {
		t.Errorf("manifest name = %s, want %s", filepath.Base(path), ManifestName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Battle != "demo_battle" {
		t.Errorf("battle = %q", manifest.Battle)
	}
	if manifest.CreatedAt == "" {
		t.Error("created_at missing")
	}
	if len(manifest.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(manifest.Turns))
	}
	if manifest.Turns[0].Character != "MC_Razor" || manifest.Turns[0].Duration != 4.2 {
		t.Errorf("turn 1 = %+v", manifest.Turns[0])
	}
	if manifest.Turns[1].VideoFile != "" {
		t.Errorf("turn 2 should have no video, got %q", manifest.Turns[1].VideoFile)
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(zap.NewNop())

	turns := []ManifestTurn{
		{Round: 1, VideoFile: filepath.Join(dir, "round_1.mp4")},
		{Round: 2}, // failed turn, no clip
		{Round: 3, VideoFile: filepath.Join(dir, "round_3.mp4")},
	}

	path, clips, err := a.WriteConcatList(dir, turns)
	if err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}
	if clips != 2 {
		t.Errorf("clips = %d, want 2", clips)
	}
	if filepath.Base(path) != ConcatListName {
		t.Errorf("list name = %s, want %s", filepath.Base(path), ConcatListName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), data)
	}
	for i, want := range []string{"round_1.mp4", "round_3.mp4"} {
		if !strings.HasPrefix(lines[i], "file '") || !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want file '...%s'", i, lines[i], want)
		}
	}
}

func TestWriteConcatListNoClips(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(zap.NewNop())

	path, clips, err := a.WriteConcatList(dir, []ManifestTurn{{Round: 1}, {Round: 2}})
	if err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}
	if clips != 0 || path != "" {
		t.Errorf("got path=%q clips=%d, want empty", path, clips)
	}
	if _, err := os.Stat(filepath.Join(dir, ConcatListName)); !os.IsNotExist(err) {
		t.Error("no list file should be written when there are no clips")
	}
}

func TestEscapeConcatPath(t *testing.T) {
	got := escapeConcatPath("/tmp/mc's battle/round_1.mp4")
	want := `/tmp/mc'\''s battle/round_1.mp4`
	if got != want {
		t.Errorf("escaped = %q, want %q", got, want)
	}
}
