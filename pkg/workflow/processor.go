package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/broadcast"
	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/dalle"
	"github.com/m3ntallyilll/rrfff/pkg/tools/drawthings"
	"github.com/m3ntallyilll/rrfff/pkg/tools/ffmpeg"
	"github.com/m3ntallyilll/rrfff/pkg/tools/image"
	"github.com/m3ntallyilll/rrfff/pkg/tools/musetalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/script"
	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
	"github.com/m3ntallyilll/rrfff/pkg/tools/verse"
	"github.com/m3ntallyilll/rrfff/pkg/tools/video"
	"github.com/m3ntallyilll/rrfff/pkg/types"
)

// BattleParams describes one battle processing request.
type BattleParams struct {
	Name       string `json:"name"`
	ScriptPath string `json:"script_path,omitempty"`
	ScriptText string `json:"script_text,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

// TurnParams describes a single verse turn outside of a full battle run.
type TurnParams struct {
	Round     int
	Character types.Character
	Text      string
}

// TurnResult reports what one turn produced.
type TurnResult struct {
	Round          int     `json:"round"`
	Character      string  `json:"character"`
	VerseText      string  `json:"verse_text,omitempty"`
	AudioFile      string  `json:"audio_file,omitempty"`
	VideoFile      string  `json:"video_file,omitempty"`
	AudioDuration  float64 `json:"audio_duration,omitempty"`
	Mode           string  `json:"mode,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
	Status         string  `json:"status"`
	Message        string  `json:"message,omitempty"`
}

// BattleResult reports the outcome of a whole battle run.
type BattleResult struct {
	BattleID     uint         `json:"battle_id,omitempty"`
	Name         string       `json:"name"`
	BattleDir    string       `json:"battle_dir"`
	ScriptFile   string       `json:"script_file"`
	Mode         string       `json:"mode"`
	Turns        []TurnResult `json:"turns"`
	Completed    int          `json:"completed"`
	Failed       int          `json:"failed"`
	Skipped      int          `json:"skipped"`
	Status       string       `json:"status"`
	ManifestFile string       `json:"manifest_file,omitempty"`
	BattleVideo  string       `json:"battle_video,omitempty"`
}

// Processor drives a battle through verse writing, speech synthesis,
// avatar preparation and lip-sync generation.
type Processor struct {
	logger    *zap.Logger
	files     *script.Manager
	speech    *tts.Processor
	media     *ffmpeg.Processor
	verses    *verse.Writer
	portraits *image.Generator
	dalle     *dalle.Client
	sd        *drawthings.Client
	assembler *video.Assembler
	lipsync   *capability.Adapter
	animator  *capability.Adapter
	db        *database.GormManager
	hub       *broadcast.BroadcastService
}

// NewProcessor wires the full toolchain. db may be nil, in which case
// battles run without persistence.
func NewProcessor(logger *zap.Logger, db *database.GormManager) *Processor {
	media := ffmpeg.NewProcessor(logger)
	lipsync, _ := musetalk.NewAdapter(logger, media)
	return &Processor{
		logger:    logger,
		files:     script.NewManager(),
		speech:    tts.NewProcessor(logger, tts.NewDefaultEngine(logger)),
		media:     media,
		verses:    verse.NewWriter(logger),
		portraits: image.NewGenerator(logger),
		dalle:     dalle.NewClient(logger),
		sd:        drawthings.NewClient(logger),
		assembler: video.NewAssembler(logger),
		lipsync:   lipsync,
		db:        db,
		hub:       broadcast.NewBroadcastService(),
	}
}

// Lipsync exposes the lip-sync adapter so servers can answer status queries.
func (p *Processor) Lipsync() *capability.Adapter { return p.lipsync }

// SetAnimator attaches an optional head-animation adapter used when a caller
// wants motion descriptors instead of rendered video.
func (p *Processor) SetAnimator(a *capability.Adapter) { p.animator = a }

// Animator returns the attached head-animation adapter, or nil.
func (p *Processor) Animator() *capability.Adapter { return p.animator }

// Speech exposes the speech synthesis processor.
func (p *Processor) Speech() *tts.Processor { return p.speech }

// Verses exposes the verse writer.
func (p *Processor) Verses() *verse.Writer { return p.verses }

// Media exposes the ffmpeg processor.
func (p *Processor) Media() *ffmpeg.Processor { return p.media }

// ImageAPI exposes the hosted portrait client.
func (p *Processor) ImageAPI() *dalle.Client { return p.dalle }

// Diffusion exposes the local diffusion portrait client.
func (p *Processor) Diffusion() *drawthings.Client { return p.sd }

// ProcessBattle runs every turn of a battle script through the pipeline.
// Individual turn failures are recorded and do not abort the battle.
func (p *Processor) ProcessBattle(ctx context.Context, params BattleParams) (*BattleResult, error) {
	text := params.ScriptText
	if text == "" {
		if params.ScriptPath == "" {
			return nil, fmt.Errorf("battle needs a script path or script text")
		}
		data, err := os.ReadFile(params.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		text = string(data)
	}

	name := params.Name
	if name == "" && params.ScriptPath != "" {
		base := filepath.Base(params.ScriptPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name == "" {
		name = fmt.Sprintf("battle_%d", time.Now().Unix())
	}

	battle, err := script.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	battle.Name = name

	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join("output", "battles")
	}
	structure, err := p.files.CreateBattleStructure(name, text, outputDir)
	if err != nil {
		return nil, fmt.Errorf("create battle structure: %w", err)
	}

	mode := p.lipsync.Initialize()
	p.logger.Info("Battle started",
		zap.String("name", name),
		zap.Int("rounds", len(battle.Rounds)),
		zap.Int("turns", battle.TurnCount()),
		zap.String("lipsync_mode", string(mode)))
	p.hub.SendMessage("battle", fmt.Sprintf("Battle %s started (%d turns)", name, battle.TurnCount()), broadcast.GetTimeStr())

	result := &BattleResult{
		Name:       name,
		BattleDir:  structure.BattleDir,
		ScriptFile: structure.ScriptFile,
		Mode:       string(mode),
	}

	var record *database.Battle
	if p.db != nil {
		record, err = p.db.CreateBattle(name, params.Topic, structure.ScriptFile, structure.BattleDir)
		if err != nil {
			p.logger.Warn("Battle persistence disabled for this run", zap.Error(err))
			record = nil
		} else {
			record.TotalRounds = battle.TurnCount()
			record.Status = database.StatusProcessing
			if err := p.db.UpdateBattle(record); err != nil {
				p.logger.Warn("Failed to update battle record", zap.Error(err))
			}
			result.BattleID = record.ID
		}
	}

	processed := 0
	for _, round := range battle.Rounds {
		for turnIdx, turn := range round.Turns {
			character := p.CharacterFor(turn.Character)
			opponent := opponentFor(round, turnIdx)

			turnRes := p.runTurn(ctx, record, structure, round.Number, character, opponent, turn.Text, params.Topic)
			result.Turns = append(result.Turns, *turnRes)
			switch turnRes.Status {
			case string(database.StatusCompleted):
				result.Completed++
			case string(database.StatusSkipped):
				result.Skipped++
			default:
				result.Failed++
			}

			processed++
			if record != nil {
				if err := p.db.UpdateBattleProgress(record.ID, processed); err != nil {
					p.logger.Warn("Failed to update battle progress", zap.Error(err))
				}
			}
		}
	}

	p.assembleBattle(ctx, result)

	result.Status = string(database.StatusCompleted)
	if result.Completed == 0 && result.Failed > 0 {
		result.Status = string(database.StatusFailed)
	}
	if record != nil {
		errMsg := ""
		if result.Failed > 0 {
			errMsg = fmt.Sprintf("%d of %d turns failed", result.Failed, len(result.Turns))
		}
		if err := p.db.UpdateBattleStatus(record.ID, database.ProcessStatus(result.Status), errMsg); err != nil {
			p.logger.Warn("Failed to update battle status", zap.Error(err))
		}
	}

	p.logger.Info("Battle finished",
		zap.String("name", name),
		zap.String("status", result.Status),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	p.hub.SendMessage("battle", fmt.Sprintf("Battle %s finished: %s", name, result.Status), broadcast.GetTimeStr())
	return result, nil
}

// assembleBattle writes the edit manifest and, when any turn produced a
// clip, cuts the battle reel. Assembly problems degrade the result, they
// never fail the battle.
func (p *Processor) assembleBattle(ctx context.Context, result *BattleResult) {
	turns := make([]video.ManifestTurn, 0, len(result.Turns))
	for _, t := range result.Turns {
		turns = append(turns, video.ManifestTurn{
			Round:     t.Round,
			Character: t.Character,
			VerseText: t.VerseText,
			AudioFile: t.AudioFile,
			VideoFile: t.VideoFile,
			Duration:  t.AudioDuration,
			Mode:      t.Mode,
		})
	}

	manifest, err := p.assembler.WriteManifest(result.BattleDir, result.Name, turns)
	if err != nil {
		p.logger.Warn("Failed to write edit manifest", zap.Error(err))
	} else {
		result.ManifestFile = manifest
	}

	listPath, clips, err := p.assembler.WriteConcatList(result.BattleDir, turns)
	if err != nil {
		p.logger.Warn("Failed to write concat list", zap.Error(err))
		return
	}
	if clips == 0 {
		return
	}

	reel := filepath.Join(result.BattleDir, "battle.mp4")
	if err := p.media.Concat(ctx, listPath, reel); err != nil {
		p.logger.Warn("Battle reel assembly failed", zap.Error(err))
		return
	}
	result.BattleVideo = reel
	p.hub.SendLog("media", fmt.Sprintf("Battle reel assembled from %d clips", clips), broadcast.GetTimeStr())
}

// ProcessTurn runs a single turn with explicit parameters, without script
// parsing or persistence. Used by the MCP and web layers.
func (p *Processor) ProcessTurn(ctx context.Context, params TurnParams) *TurnResult {
	round := params.Round
	if round <= 0 {
		round = 1
	}
	return p.runTurn(ctx, nil, nil, round, params.Character, "", params.Text, "")
}

// runTurn executes verse -> speech -> avatar -> lip-sync for one turn.
// Failures mark the turn and return; they never abort the caller's loop.
func (p *Processor) runTurn(ctx context.Context, record *database.Battle, structure *script.BattleStructure, roundNum int, character types.Character, opponent, text, topic string) *TurnResult {
	res := &TurnResult{Round: roundNum, Character: character.ID, Status: string(database.StatusProcessing)}

	started := time.Now()
	var row *database.Round
	if record != nil && p.db != nil {
		row = &database.Round{
			BattleID:  record.ID,
			Number:    roundNum,
			Character: character.ID,
			VerseText: text,
			Status:    database.StatusProcessing,
			StartTime: database.MyTime{Time: started},
		}
		if err := p.db.CreateRound(row); err != nil {
			p.logger.Warn("Failed to create round record", zap.Error(err))
			row = nil
		}
	}
	finish := func(status database.ProcessStatus, msg string) *TurnResult {
		res.Status = string(status)
		res.Message = msg
		if row != nil {
			row.VerseText = res.VerseText
			row.Status = status
			row.ErrorMsg = msg
			row.EndTime = database.MyTime{Time: time.Now()}
			row.Duration = int64(time.Since(started).Seconds())
			if err := p.db.UpdateRound(row); err != nil {
				p.logger.Warn("Failed to update round record", zap.Error(err))
			}
		}
		return res
	}

	// Scripted turns carry their own lines; empty turns go to the verse
	// writer when one is reachable.
	if strings.TrimSpace(text) == "" {
		written, err := p.writeVerse(ctx, character, opponent, topic, roundNum)
		if err != nil {
			p.logger.Warn("No verse available for turn",
				zap.String("character", character.ID),
				zap.Int("round", roundNum),
				zap.Error(err))
			return finish(database.StatusSkipped, fmt.Sprintf("no verse text: %v", err))
		}
		text = written
	}
	res.VerseText = text
	p.hub.SendLog("verse", fmt.Sprintf("Round %d: %s verse ready (%d chars)", roundNum, character.ID, len(text)), broadcast.GetTimeStr())

	audioPath := ""
	if structure != nil {
		audioPath = filepath.Join(structure.AudioDir, turnFilename(roundNum, character.ID, "wav"))
	}
	speech, err := p.speech.Generate(ctx, tts.Request{
		Text:        text,
		VoicePreset: character.VoicePreset,
		Temperature: character.Temperature,
		OutputPath:  audioPath,
	})
	if err != nil {
		return finish(database.StatusFailed, fmt.Sprintf("speech synthesis: %v", err))
	}
	if !speech.Success {
		p.logger.Warn("Speech synthesis failed",
			zap.String("character", character.ID),
			zap.Int("round", roundNum),
			zap.String("error", speech.Error))
		return finish(database.StatusFailed, fmt.Sprintf("speech synthesis: %s", speech.Error))
	}
	res.AudioFile = speech.OutputFile
	res.AudioDuration = speech.Duration
	if res.AudioDuration == 0 {
		if d, derr := p.media.Duration(ctx, speech.OutputFile); derr == nil {
			res.AudioDuration = d
		}
	}
	p.persistAsset(row, database.AssetAudio, speech.OutputFile, "", speech.SizeBytes, res.AudioDuration)
	p.markProgress(row, true, false)

	if !p.lipsync.Prepared(character.ID) {
		portraitDir := ""
		if structure != nil {
			portraitDir = structure.PortraitDir
		}
		if _, err := p.PrepareAvatar(ctx, character, portraitDir); err != nil {
			return finish(database.StatusFailed, fmt.Sprintf("avatar preparation: %v", err))
		}
	}

	videoPath := ""
	if structure != nil {
		videoPath = filepath.Join(structure.VideoDir, turnFilename(roundNum, character.ID, "mp4"))
	}
	gen := p.lipsync.Generate(ctx, character.ID, capability.GenerationInput{
		AudioPath:  speech.OutputFile,
		OutputPath: videoPath,
	})
	res.Mode = string(gen.Mode)
	res.FallbackReason = string(gen.FallbackReason)
	if !gen.Success {
		p.logger.Warn("Lip-sync generation failed",
			zap.String("character", character.ID),
			zap.Int("round", roundNum),
			zap.String("diagnostic", gen.Diagnostic))
		return finish(database.StatusFailed, fmt.Sprintf("lip-sync: %s", gen.Diagnostic))
	}
	res.VideoFile = gen.OutputPath
	p.persistAsset(row, database.AssetVideo, gen.OutputPath, string(gen.Mode), fileSize(gen.OutputPath), res.AudioDuration)
	p.markProgress(row, true, true)
	p.hub.SendLog("lipsync", fmt.Sprintf("Round %d: %s video ready (%s)", roundNum, character.ID, gen.Mode), broadcast.GetTimeStr())

	return finish(database.StatusCompleted, "")
}

// PrepareAvatar obtains a portrait for the character and registers it with
// the lip-sync adapter. The hosted image API is preferred, then a local
// diffusion server, then the placeholder renderer.
func (p *Processor) PrepareAvatar(ctx context.Context, character types.Character, portraitDir string) (*capability.PreparedSubject, error) {
	portraitPath, placeholder, err := p.GeneratePortrait(ctx, character.Name, character.PortraitPrompt, portraitDir)
	if err != nil {
		return nil, fmt.Errorf("generate portrait: %w", err)
	}

	subject, err := p.lipsync.Prepare(character.ID, portraitPath)
	if err != nil {
		return nil, err
	}
	if p.animator != nil && !p.animator.Prepared(character.ID) {
		if _, err := p.animator.Prepare(character.ID, portraitPath); err != nil {
			p.logger.Warn("Animator preparation failed",
				zap.String("character", character.ID),
				zap.Error(err))
		}
	}
	p.logger.Info("Avatar prepared",
		zap.String("character", character.ID),
		zap.String("portrait", portraitPath),
		zap.Bool("placeholder", placeholder))
	return subject, nil
}

// GeneratePortrait renders a character portrait without registering it
// with the lip-sync adapter. Returns the file path and whether the local
// placeholder renderer produced it.
func (p *Processor) GeneratePortrait(ctx context.Context, name, prompt, outputDir string) (string, bool, error) {
	if outputDir == "" {
		outputDir = filepath.Join("output", "portraits")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", false, fmt.Errorf("create portrait dir: %w", err)
	}
	if prompt == "" {
		prompt = fmt.Sprintf("Portrait of battle rapper %s on a neon stage", name)
	}

	if p.dalle.Available() {
		path, err := p.dalle.GeneratePortrait(ctx, name, prompt, outputDir)
		if err == nil {
			return path, false, nil
		}
		p.logger.Warn("DALL-E portrait failed, trying the next renderer",
			zap.String("character", name),
			zap.Error(err))
	}

	out := filepath.Join(outputDir, dalle.PortraitFilename(name, time.Now()))
	if p.sd.Available(ctx) {
		err := p.sd.GeneratePortrait(ctx, prompt, out)
		if err == nil {
			return out, false, nil
		}
		p.logger.Warn("Diffusion portrait failed, using local generator",
			zap.String("character", name),
			zap.Error(err))
	}

	portrait, err := p.portraits.GeneratePortrait(name, prompt, out)
	if err != nil {
		return "", false, err
	}
	return portrait.ImageFile, true, nil
}

// writeVerse asks the verse writer for bars when the script has none.
func (p *Processor) writeVerse(ctx context.Context, character types.Character, opponent, topic string, round int) (string, error) {
	if !p.verses.Available(ctx) {
		return "", fmt.Errorf("verse writer unreachable at %s", p.verses.BaseURL)
	}
	v, err := p.verses.WriteVerse(ctx, verse.VerseRequest{
		Character: character.Name,
		Persona:   character.PortraitPrompt,
		Opponent:  opponent,
		Topic:     topic,
		Round:     round,
	})
	if err != nil {
		return "", err
	}
	return v.Text, nil
}

func (p *Processor) persistAsset(row *database.Round, kind, path, mode string, size int64, duration float64) {
	if row == nil || p.db == nil || path == "" {
		return
	}
	asset := &database.GeneratedAsset{
		RoundID:   row.ID,
		Kind:      kind,
		Path:      path,
		Mode:      mode,
		SizeBytes: size,
		Duration:  duration,
	}
	if err := p.db.CreateAsset(asset); err != nil {
		p.logger.Warn("Failed to persist asset", zap.String("path", path), zap.Error(err))
	}
}

func (p *Processor) markProgress(row *database.Round, audio, video bool) {
	if row == nil || p.db == nil {
		return
	}
	if err := p.db.UpdateRoundProgress(row.ID, audio, video); err != nil {
		p.logger.Warn("Failed to update round progress", zap.Error(err))
	}
	row.AudioGenerated = audio
	row.VideoGenerated = video
}

// CharacterFor resolves a script character tag against the roster, falling
// back to an ad-hoc character so unknown tags still get a voice and a face.
func (p *Processor) CharacterFor(id string) types.Character {
	if c, ok := types.CharacterByID(id); ok {
		return c
	}
	p.logger.Debug("Unknown character tag in script", zap.String("character", id))
	return types.Character{
		ID:             id,
		Name:           strings.ReplaceAll(id, "_", " "),
		StyleID:        types.StyleFor(id),
		VoicePreset:    tts.DefaultVoicePreset,
		Temperature:    tts.DefaultTemperature,
		PortraitPrompt: fmt.Sprintf("Portrait of battle rapper %s on a neon stage", strings.ReplaceAll(id, "_", " ")),
	}
}

// opponentFor names the other performer in the round, if there is one.
func opponentFor(round script.Round, turnIdx int) string {
	for i, t := range round.Turns {
		if i != turnIdx {
			return t.Character
		}
	}
	return ""
}

func turnFilename(round int, character, ext string) string {
	return fmt.Sprintf("round_%02d_%s.%s", round, strings.ToLower(character), ext)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
