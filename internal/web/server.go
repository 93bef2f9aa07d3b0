package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/broadcast"
	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/file"
	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
	"github.com/m3ntallyilll/rrfff/pkg/types"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes the battle pipeline over REST plus a websocket log feed.
type Server struct {
	logger    *zap.Logger
	processor *workflow.Processor
	db        *database.GormManager
	hub       *broadcast.BroadcastService
	engine    *gin.Engine
	inputDir  string
	outputDir string
	files     *file.Manager

	// One battle at a time: the underlying adapters are not safe for
	// concurrent generation.
	battleMu sync.Mutex
}

// NewServer wires the routes. db may be nil; battle listing then reports
// 503 and battles run without persistence.
func NewServer(logger *zap.Logger, processor *workflow.Processor, db *database.GormManager, hub *broadcast.BroadcastService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:    logger,
		processor: processor,
		db:        db,
		hub:       hub,
		engine:    gin.Default(),
		inputDir:  "input",
		outputDir: "output",
	}

	files, err := file.NewManager(s.inputDir, s.outputDir)
	if err != nil {
		logger.Warn("File browsing unavailable", zap.Error(err))
	}
	s.files = files

	s.routes()
	return s
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/api/status", s.handleStatus)
	s.engine.GET("/api/characters", s.handleCharacters)
	s.engine.POST("/api/prepare", s.handlePrepare)
	s.engine.POST("/api/generate", s.handleGenerate)
	s.engine.POST("/api/speak", s.handleSpeak)
	s.engine.GET("/api/battles", s.handleListBattles)
	s.engine.POST("/api/battles", s.handleStartBattle)
	s.engine.GET("/api/files/list", s.handleListFiles)
	s.engine.GET("/api/files/content", s.handleFileContent)
	s.engine.DELETE("/api/files/delete", s.handleDeleteFile)
	s.engine.POST("/api/files/upload", s.handleUploadFile)
	s.engine.GET("/ws", s.handleWS)

	for _, dir := range []string{s.inputDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Warn("Failed to create directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	s.engine.Static("/files/input", s.inputDir)
	s.engine.Static("/files/output", s.outputDir)
}

// Run serves until the listener fails. The port comes from PORT, default
// 8080.
func (s *Server) Run() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	s.logger.Info("Web server listening", zap.String("port", port))
	return s.engine.Run(":" + port)
}

func (s *Server) handleStatus(c *gin.Context) {
	probeCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := gin.H{
		"lipsync": s.processor.Lipsync().Status(),
		"speech": gin.H{
			"engine":    s.processor.Speech().Engine().Name(),
			"available": s.processor.Speech().Engine().Available(),
		},
		"verse": gin.H{
			"url":       s.processor.Verses().BaseURL,
			"available": s.processor.Verses().Available(probeCtx),
		},
		"portraits": gin.H{
			"image_api": s.processor.ImageAPI().Available(),
			"diffusion": s.processor.Diffusion().Available(probeCtx),
		},
		"ffmpeg": gin.H{
			"binary":    s.processor.Media().Binary(),
			"available": s.processor.Media().Available(),
		},
	}
	if animator := s.processor.Animator(); animator != nil {
		status["animator"] = animator.Status()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, types.DefaultCharacters())
}

type prepareRequest struct {
	CharacterID string `json:"character_id"`
	ImagePath   string `json:"image_path"`
}

func (s *Server) handlePrepare(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.CharacterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing character_id"})
		return
	}

	var subject *capability.PreparedSubject
	var err error
	if req.ImagePath != "" {
		subject, err = s.processor.Lipsync().Prepare(req.CharacterID, req.ImagePath)
	} else {
		subject, err = s.processor.PrepareAvatar(c.Request.Context(), s.processor.CharacterFor(req.CharacterID), "")
	}
	if err != nil {
		s.logger.Error("Avatar preparation failed", zap.String("character", req.CharacterID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, subject)
}

type generateRequest struct {
	CharacterID string `json:"character_id"`
	AudioPath   string `json:"audio_path"`
	OutputPath  string `json:"output_path"`
	Animate     bool   `json:"animate"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.CharacterID == "" || req.AudioPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing character_id or audio_path"})
		return
	}

	adapter := s.processor.Lipsync()
	if req.Animate {
		adapter = s.processor.Animator()
		if adapter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Head animation adapter is not configured"})
			return
		}
	}

	result := adapter.Generate(c.Request.Context(), req.CharacterID, capability.GenerationInput{
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
	})
	c.JSON(http.StatusOK, result)
}

type speakRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice"`
	Temperature float64 `json:"temperature"`
	OutputFile  string  `json:"output_file"`
}

func (s *Server) handleSpeak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing text"})
		return
	}

	result, err := s.processor.Speech().Generate(c.Request.Context(), tts.Request{
		Text:        req.Text,
		VoicePreset: req.Voice,
		Temperature: req.Temperature,
		OutputPath:  req.OutputFile,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListBattles(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Battle persistence is not configured"})
		return
	}
	battles, err := s.db.ListBattles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, battles)
}

func (s *Server) handleStartBattle(c *gin.Context) {
	var params workflow.BattleParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if params.ScriptPath == "" && params.ScriptText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide script_path or script_text"})
		return
	}
	if !s.battleMu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "A battle is already running"})
		return
	}

	jobID := uuid.NewString()
	go func() {
		defer s.battleMu.Unlock()
		result, err := s.processor.ProcessBattle(context.Background(), params)
		if err != nil {
			s.logger.Error("Battle processing failed", zap.String("job_id", jobID), zap.Error(err))
			s.hub.SendMessage("battle", "Battle failed: "+err.Error(), broadcast.GetTimeStr())
			return
		}
		s.logger.Info("Battle processing finished",
			zap.String("job_id", jobID),
			zap.String("name", result.Name),
			zap.String("status", result.Status))
	}()

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Battle processing started",
		"job_id":  jobID,
	})
}

// fileError maps manager failures onto HTTP status codes.
func fileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, file.ErrEmptyPath), errors.Is(err, file.ErrNotPreviewable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, file.ErrOutsideRoots), errors.Is(err, file.ErrRootDeletion):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case os.IsNotExist(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleListFiles(c *gin.Context) {
	if s.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File browsing is not configured"})
		return
	}

	dir := c.DefaultQuery("dir", "output")
	entries, _, err := s.files.List(dir)
	if err != nil {
		fileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": dir, "files": entries})
}

func (s *Server) handleFileContent(c *gin.Context) {
	if s.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File browsing is not configured"})
		return
	}

	content, err := s.files.ReadText(c.Query("path"))
	if err != nil {
		fileError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", content)
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	if s.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File browsing is not configured"})
		return
	}

	path := c.Query("path")
	if err := s.files.Delete(path); err != nil {
		fileError(c, err)
		return
	}
	s.logger.Info("Deleted path", zap.String("path", path))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Deleted " + path})
}

func (s *Server) handleUploadFile(c *gin.Context) {
	if s.files == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "File browsing is not configured"})
		return
	}

	dir := c.DefaultPostForm("dir", "input")
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	stored, err := s.files.SaveUpload(dir, header.Filename, src)
	if err != nil {
		fileError(c, err)
		return
	}
	s.logger.Info("Stored upload", zap.String("path", stored))
	c.JSON(http.StatusOK, gin.H{"status": "success", "path": stored, "size": header.Size})
}

func (s *Server) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := s.hub.RegisterClient(ws)
	defer ws.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range client.Send {
			if err := ws.WriteJSON(entry); err != nil {
				return
			}
		}
	}()

	// Drain client frames; the feed is one-way but reads surface
	// disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	// Unregistering closes client.Send, which stops the writer.
	s.hub.UnregisterClient(client)
	<-done
}
