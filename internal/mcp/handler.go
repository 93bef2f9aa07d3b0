package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcp "github.com/mark3labs/mcp-go/mcp"
	mcp_server "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

// Handler processes MCP requests
type Handler struct {
	server    *mcp_server.MCPServer
	processor *workflow.Processor
	logger    *zap.Logger
	toolNames []string
}

// NewHandler creates a new handler
func NewHandler(server *mcp_server.MCPServer, processor *workflow.Processor, logger *zap.Logger) *Handler {
	return &Handler{
		server:    server,
		processor: processor,
		logger:    logger,
		toolNames: make([]string, 0),
	}
}

// RegisterTools registers all tools with the MCP server
func (h *Handler) RegisterTools() {
	synthesizeSpeechTool := mcp.NewTool("synthesize_speech",
		mcp.WithDescription("Synthesize rap vocals from text using the Bark engine"),
		mcp.WithString("text", mcp.Required(), mcp.Description("The text to speak")),
		mcp.WithString("voice", mcp.Description("Bark voice preset, e.g. v2/en_speaker_6")),
		mcp.WithNumber("temperature", mcp.Description("Sampling temperature (default 0.7)")),
		mcp.WithString("output_file", mcp.Description("Output wav path")),
	)
	h.server.AddTool(synthesizeSpeechTool, h.handleSynthesizeSpeech)
	h.toolNames = append(h.toolNames, "synthesize_speech")

	prepareAvatarTool := mcp.NewTool("prepare_avatar",
		mcp.WithDescription("Prepare a character avatar for lip-sync generation"),
		mcp.WithString("character_id", mcp.Required(), mcp.Description("Character id, e.g. MC_Razor")),
		mcp.WithString("image_path", mcp.Description("Existing portrait or video to prepare; generated when omitted")),
	)
	h.server.AddTool(prepareAvatarTool, h.handlePrepareAvatar)
	h.toolNames = append(h.toolNames, "prepare_avatar")

	generateLipsyncTool := mcp.NewTool("generate_lipsync",
		mcp.WithDescription("Generate a lip-synced video for a prepared avatar"),
		mcp.WithString("character_id", mcp.Required(), mcp.Description("Prepared character id")),
		mcp.WithString("audio_path", mcp.Required(), mcp.Description("Speech audio to sync against")),
		mcp.WithString("output_path", mcp.Description("Output mp4 path")),
	)
	h.server.AddTool(generateLipsyncTool, h.handleGenerateLipsync)
	h.toolNames = append(h.toolNames, "generate_lipsync")

	animateSpeechTool := mcp.NewTool("animate_speech",
		mcp.WithDescription("Generate speech-driven head animation for an avatar prepared with prepare_avatar"),
		mcp.WithString("character_id", mcp.Required(), mcp.Description("Prepared character id")),
		mcp.WithString("audio_path", mcp.Required(), mcp.Description("Speech audio to animate against")),
		mcp.WithString("output_path", mcp.Description("Output path; a descriptor .json in simulation mode")),
	)
	h.server.AddTool(animateSpeechTool, h.handleAnimateSpeech)
	h.toolNames = append(h.toolNames, "animate_speech")

	generateCharacterImageTool := mcp.NewTool("generate_character_image",
		mcp.WithDescription("Generate a character portrait (DALL-E, with local fallback)"),
		mcp.WithString("character_name", mcp.Required(), mcp.Description("Display name of the character")),
		mcp.WithString("prompt", mcp.Description("Portrait prompt; templated from the name when omitted")),
		mcp.WithString("output_dir", mcp.Description("Directory for the png")),
	)
	h.server.AddTool(generateCharacterImageTool, h.handleGenerateCharacterImage)
	h.toolNames = append(h.toolNames, "generate_character_image")

	avatarStatusTool := mcp.NewTool("avatar_status",
		mcp.WithDescription("Report lip-sync and animation adapter status"),
	)
	h.server.AddTool(avatarStatusTool, h.handleAvatarStatus)
	h.toolNames = append(h.toolNames, "avatar_status")

	processVerseTool := mcp.NewTool("process_verse",
		mcp.WithDescription("Run one verse through speech synthesis and lip-sync"),
		mcp.WithString("character_id", mcp.Required(), mcp.Description("Character id, e.g. MC_Venom")),
		mcp.WithString("text", mcp.Description("Verse text; written by the verse writer when omitted")),
		mcp.WithNumber("round", mcp.Description("Round number (default 1)")),
	)
	h.server.AddTool(processVerseTool, h.handleProcessVerse)
	h.toolNames = append(h.toolNames, "process_verse")

	processBattleTool := mcp.NewTool("process_battle",
		mcp.WithDescription("Process a whole battle script into audio and video assets"),
		mcp.WithString("script_path", mcp.Description("Path to a battle script file")),
		mcp.WithString("script_text", mcp.Description("Inline battle script; overrides script_path")),
		mcp.WithString("name", mcp.Description("Battle name (defaults from the script filename)")),
		mcp.WithString("output_dir", mcp.Description("Base output directory")),
		mcp.WithString("topic", mcp.Description("Battle topic handed to the verse writer")),
	)
	h.server.AddTool(processBattleTool, h.handleProcessBattle)
	h.toolNames = append(h.toolNames, "process_battle")

	h.logger.Info("MCP tools registered",
		zap.Int("tool_count", len(h.toolNames)))
}

func (h *Handler) handleSynthesizeSpeech(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		h.logger.Error("Missing text parameter", zap.Error(err))
		return mcp.NewToolResultError("Missing required parameter: text"), nil
	}

	result, err := h.processor.Speech().Generate(ctx, tts.Request{
		Text:        text,
		VoicePreset: request.GetString("voice", ""),
		Temperature: request.GetFloat("temperature", 0),
		OutputPath:  request.GetString("output_file", ""),
	})
	if err != nil {
		h.logger.Error("Failed to synthesize speech", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to synthesize speech: %v", err)), nil
	}
	return h.jsonResult(result)
}

func (h *Handler) handlePrepareAvatar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	characterID, err := request.RequireString("character_id")
	if err != nil {
		h.logger.Error("Missing character_id parameter", zap.Error(err))
		return mcp.NewToolResultError("Missing required parameter: character_id"), nil
	}

	imagePath := request.GetString("image_path", "")

	var subject *capability.PreparedSubject
	if imagePath != "" {
		subject, err = h.processor.Lipsync().Prepare(characterID, imagePath)
	} else {
		subject, err = h.processor.PrepareAvatar(ctx, h.processor.CharacterFor(characterID), "")
	}
	if err != nil {
		h.logger.Error("Failed to prepare avatar", zap.String("character", characterID), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to prepare avatar: %v", err)), nil
	}
	return h.jsonResult(subject)
}

func (h *Handler) handleGenerateLipsync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	characterID, err := request.RequireString("character_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: character_id"), nil
	}
	audioPath, err := request.RequireString("audio_path")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: audio_path"), nil
	}

	result := h.processor.Lipsync().Generate(ctx, characterID, capability.GenerationInput{
		AudioPath:  audioPath,
		OutputPath: request.GetString("output_path", ""),
	})
	return h.jsonResult(result)
}

func (h *Handler) handleAnimateSpeech(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	characterID, err := request.RequireString("character_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: character_id"), nil
	}
	audioPath, err := request.RequireString("audio_path")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: audio_path"), nil
	}

	animator := h.processor.Animator()
	if animator == nil {
		return mcp.NewToolResultError("Head animation adapter is not configured"), nil
	}

	result := animator.Generate(ctx, characterID, capability.GenerationInput{
		AudioPath:  audioPath,
		OutputPath: request.GetString("output_path", ""),
	})
	return h.jsonResult(result)
}

func (h *Handler) handleGenerateCharacterImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	characterName, err := request.RequireString("character_name")
	if err != nil {
		h.logger.Error("Missing character_name parameter", zap.Error(err))
		return mcp.NewToolResultError("Missing required parameter: character_name"), nil
	}

	path, placeholder, err := h.processor.GeneratePortrait(ctx,
		characterName,
		request.GetString("prompt", ""),
		request.GetString("output_dir", ""),
	)
	if err != nil {
		h.logger.Error("Failed to generate character image", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate character image: %v", err)), nil
	}

	return h.jsonResult(map[string]interface{}{
		"success":     true,
		"file":        path,
		"placeholder": placeholder,
	})
}

func (h *Handler) handleAvatarStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]interface{}{
		"lipsync": h.processor.Lipsync().Status(),
	}
	if animator := h.processor.Animator(); animator != nil {
		status["animator"] = animator.Status()
	}
	return h.jsonResult(status)
}

func (h *Handler) handleProcessVerse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	characterID, err := request.RequireString("character_id")
	if err != nil {
		h.logger.Error("Missing character_id parameter", zap.Error(err))
		return mcp.NewToolResultError("Missing required parameter: character_id"), nil
	}

	result := h.processor.ProcessTurn(ctx, workflow.TurnParams{
		Round:     request.GetInt("round", 1),
		Character: h.processor.CharacterFor(characterID),
		Text:      request.GetString("text", ""),
	})
	return h.jsonResult(result)
}

func (h *Handler) handleProcessBattle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := workflow.BattleParams{
		Name:       request.GetString("name", ""),
		ScriptPath: request.GetString("script_path", ""),
		ScriptText: request.GetString("script_text", ""),
		OutputDir:  request.GetString("output_dir", ""),
		Topic:      request.GetString("topic", ""),
	}
	if params.ScriptPath == "" && params.ScriptText == "" {
		return mcp.NewToolResultError("Provide script_path or script_text"), nil
	}

	result, err := h.processor.ProcessBattle(ctx, params)
	if err != nil {
		h.logger.Error("Failed to process battle", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to process battle: %v", err)), nil
	}
	return h.jsonResult(result)
}

func (h *Handler) jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		h.logger.Error("Failed to serialize result", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Failed to serialize result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// GetToolNames gets all tool names
func (h *Handler) GetToolNames() []string {
	return h.toolNames
}
