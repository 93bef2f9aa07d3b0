// Package script parses plain-text battle scripts and lays out the
// per-battle output structure.
//
// Script format: `[Round N]` opens a round, `CHARACTER: text` opens a
// turn, following lines without a speaker prefix continue the current
// turn. Lines starting with # are comments.
package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Turn is one character's verse within a round.
type Turn struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// Round groups the turns performed over one beat.
type Round struct {
	Number int    `json:"number"`
	Turns  []Turn `json:"turns"`
}

// Battle is a parsed script.
type Battle struct {
	Name   string  `json:"name"`
	Rounds []Round `json:"rounds"`
}

// TurnCount sums the turns across all rounds.
func (b *Battle) TurnCount() int {
	total := 0
	for _, round := range b.Rounds {
		total += len(round.Turns)
	}
	return total
}

var (
	roundMarker = regexp.MustCompile(`^\[\s*[Rr]ound\s+(\d+)\s*\]$`)
	speakerLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s*:\s*(.*)$`)
)

// Parse reads a battle script. Turns before the first round marker land
// in an implicit round 1; a script without any turns is an error.
func Parse(content string) (*Battle, error) {
	battle := &Battle{}
	var current *Round

	openRound := func(number int) {
		battle.Rounds = append(battle.Rounds, Round{Number: number})
		current = &battle.Rounds[len(battle.Rounds)-1]
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := roundMarker.FindStringSubmatch(line); m != nil {
			number, err := strconv.Atoi(m[1])
			if err != nil || number <= 0 {
				number = len(battle.Rounds) + 1
			}
			openRound(number)
			continue
		}

		if m := speakerLine.FindStringSubmatch(line); m != nil {
			if current == nil {
				openRound(1)
			}
			current.Turns = append(current.Turns, Turn{
				Character: m[1],
				Text:      m[2],
			})
			continue
		}

		// Continuation of the current turn's verse.
		if current != nil && len(current.Turns) > 0 {
			last := &current.Turns[len(current.Turns)-1]
			if last.Text == "" {
				last.Text = line
			} else {
				last.Text += "\n" + line
			}
		}
	}

	if battle.TurnCount() == 0 {
		return nil, fmt.Errorf("script contains no turns")
	}
	return battle, nil
}

// LoadScript parses a script file. The battle takes its name from the
// file name.
func LoadScript(path string) (*Battle, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	battle, err := Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	base := filepath.Base(path)
	battle.Name = strings.TrimSuffix(base, filepath.Ext(base))
	return battle, nil
}

// Manager lays out battle output directories.
type Manager struct{}

// NewManager creates a file manager.
func NewManager() *Manager {
	return &Manager{}
}

// BattleStructure holds the directories of one battle's assets.
type BattleStructure struct {
	BattleDir   string
	ScriptFile  string
	AudioDir    string
	VideoDir    string
	PortraitDir string
	MetaDir     string
}

// CreateBattleStructure creates the output tree for one battle and
// stores the script text alongside the generated assets.
func (m *Manager) CreateBattleStructure(battleName, scriptText, baseDir string) (*BattleStructure, error) {
	battleDir := filepath.Join(baseDir, battleName)
	if err := os.MkdirAll(battleDir, 0755); err != nil {
		return nil, fmt.Errorf("create battle directory: %w", err)
	}

	subdirs := []string{"audio", "video", "portraits", "meta"}
	dirPaths := make(map[string]string)

	for _, subdir := range subdirs {
		dirPath := filepath.Join(battleDir, subdir)
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", subdir, err)
		}
		dirPaths[subdir] = dirPath
	}

	scriptFile := filepath.Join(battleDir, "script.txt")
	if err := os.WriteFile(scriptFile, []byte(scriptText), 0644); err != nil {
		return nil, fmt.Errorf("save script: %w", err)
	}

	return &BattleStructure{
		BattleDir:   battleDir,
		ScriptFile:  scriptFile,
		AudioDir:    dirPaths["audio"],
		VideoDir:    dirPaths["video"],
		PortraitDir: dirPaths["portraits"],
		MetaDir:     dirPaths["meta"],
	}, nil
}

// SaveJSON writes data as indented JSON.
func (m *Manager) SaveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("write JSON file: %w", err)
	}

	return nil
}
