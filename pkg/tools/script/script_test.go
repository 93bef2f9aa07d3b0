package script

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleScript = `# Championship battle

[Round 1]
MC_Razor: Step aside, I run this block
watch me detonate the clock
MC_Venom: Snake strike, venom in my veins

[Round 2]
MC_Venom: Round two, I turn the heat up
MC_Razor: Heat? I bring the meltdown
`

func TestParse(t *testing.T) {
	battle, err := Parse(sampleScript)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []Round{
		{
			Number: 1,
			Turns: []Turn{
				{Character: "MC_Razor", Text: "Step aside, I run this block\nwatch me detonate the clock"},
				{Character: "MC_Venom", Text: "Snake strike, venom in my veins"},
			},
		},
		{
			Number: 2,
			Turns: []Turn{
				{Character: "MC_Venom", Text: "Round two, I turn the heat up"},
				{Character: "MC_Razor", Text: "Heat? I bring the meltdown"},
			},
		},
	}

	if !reflect.DeepEqual(battle.Rounds, want) {
		t.Errorf("rounds = %+v, want %+v", battle.Rounds, want)
	}
	if battle.TurnCount() != 4 {
		t.Errorf("turn count = %d, want 4", battle.TurnCount())
	}
}

func TestParseImplicitRound(t *testing.T) {
	battle, err := Parse("MC_Silk: smooth operator on the mic\n")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(battle.Rounds) != 1 || battle.Rounds[0].Number != 1 {
		t.Fatalf("rounds = %+v, want one implicit round 1", battle.Rounds)
	}
	if battle.Rounds[0].Turns[0].Character != "MC_Silk" {
		t.Errorf("character = %q", battle.Rounds[0].Turns[0].Character)
	}
}

func TestParseEmptyScript(t *testing.T) {
	for _, content := range []string{"", "# only a comment\n", "[Round 1]\n"} {
		if _, err := Parse(content); err == nil {
			t.Errorf("expected error for script %q", content)
		}
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grand_final.txt")
	if err := os.WriteFile(path, []byte(sampleScript), 0644); err != nil {
		t.Fatal(err)
	}

	battle, err := LoadScript(path)
	if err != nil {
		t.Fatalf("LoadScript failed: %v", err)
	}
	if battle.Name != "grand_final" {
		t.Errorf("battle name = %q, want grand_final", battle.Name)
	}
	if len(battle.Rounds) != 2 {
		t.Errorf("rounds = %d, want 2", len(battle.Rounds))
	}
}

func TestCreateBattleStructure(t *testing.T) {
	manager := NewManager()
	baseDir := t.TempDir()

	structure, err := manager.CreateBattleStructure("grand_final", sampleScript, baseDir)
	if err != nil {
		t.Fatalf("CreateBattleStructure failed: %v", err)
	}

	for _, dir := range []string{structure.AudioDir, structure.VideoDir, structure.PortraitDir, structure.MetaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory missing: %v", err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	content, err := os.ReadFile(structure.ScriptFile)
	if err != nil {
		t.Fatalf("script file missing: %v", err)
	}
	if string(content) != sampleScript {
		t.Error("stored script does not match input")
	}
}

func TestSaveJSON(t *testing.T) {
	manager := NewManager()
	path := filepath.Join(t.TempDir(), "meta.json")

	turn := Turn{Character: "MC_Razor", Text: "bars"}
	if err := manager.SaveJSON(path, turn); err != nil {
		t.Fatalf("SaveJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "\"character\": \"MC_Razor\""; !strings.Contains(string(data), want) {
		t.Errorf("JSON %s missing %s", data, want)
	}
}
