package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/internal/mcp"
	"github.com/m3ntallyilll/rrfff/internal/web"
	"github.com/m3ntallyilll/rrfff/pkg/broadcast"
	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/dalle"
	"github.com/m3ntallyilll/rrfff/pkg/tools/drawthings"
	"github.com/m3ntallyilll/rrfff/pkg/tools/ffmpeg"
	"github.com/m3ntallyilll/rrfff/pkg/tools/musetalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
	"github.com/m3ntallyilll/rrfff/pkg/tools/verse"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

func main() {
	fmt.Println("Starting rap battle pipeline...")

	// .env carries OPENAI_API_KEY and similar secrets; a missing file just
	// means the environment already has them.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	// Self-check reports what is missing but never blocks startup: the
	// capability adapters fall back to simulation drivers on their own.
	unavailable := runSelfCheck()
	if len(unavailable) > 0 {
		fmt.Printf("⚠️  Running degraded, unavailable: %v\n", unavailable)
		fmt.Println("Generation falls back to simulation output where drivers are missing.")
	}

	// The hub must be the process-wide one before the processor is built so
	// every component broadcasts to the same client set.
	hub := broadcast.NewBroadcastService()
	broadcast.GlobalBroadcastService = hub

	var wg sync.WaitGroup
	wg.Add(1)
	go hub.Start(&wg)

	db, err := database.NewGormManager()
	if err != nil {
		logger.Warn("Battle persistence disabled", zap.Error(err))
		db = nil
	}

	processor := workflow.NewProcessor(logger, db)
	animator, _ := artalk.NewAdapter(logger)
	processor.SetAnimator(animator)

	// Both servers share one processor, so capability probes run once per
	// process no matter which surface triggers them.
	go runMCPBackground(processor, logger)
	go runWebBackground(logger, processor, db, hub)

	fmt.Println("MCP and web servers are running in the background...")
	fmt.Println("- MCP server: stdio transport for agent clients")
	fmt.Println("- Web server: http://localhost:8080 for the battle dashboard")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	hub.Close()
	wg.Wait()

	if db != nil {
		db.Close()
	}
}

func runMCPBackground(processor *workflow.Processor, logger *zap.Logger) {
	server, err := mcp.NewServer(processor, logger)
	if err != nil {
		logger.Error("Failed to create MCP server", zap.Error(err))
		return
	}

	// Once serving, stdout belongs to the MCP transport; log to stderr only.
	logger.Info("MCP server listening on stdio",
		zap.Strings("tools", server.GetToolNames()))

	if err := server.Start(context.Background()); err != nil {
		logger.Error("MCP server stopped", zap.Error(err))
	}
}

func runWebBackground(logger *zap.Logger, processor *workflow.Processor, db *database.GormManager, hub *broadcast.BroadcastService) {
	server := web.NewServer(logger, processor, db, hub)
	if err := server.Run(); err != nil {
		logger.Error("Web server stopped", zap.Error(err))
	}
}

// loadConfig reads config.yaml from the working directory, falling back to
// the executable's directory. Every consumer carries viper defaults, so a
// missing file only means defaults apply.
func loadConfig(logger *zap.Logger) {
	wd, _ := os.Getwd()
	configPath := filepath.Join(wd, "config.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		exe, exeErr := os.Executable()
		if exeErr != nil {
			logger.Warn("Cannot resolve executable path", zap.Error(exeErr))
			return
		}
		configPath = filepath.Join(filepath.Dir(exe), "config.yaml")
	}

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Config file not loaded, using defaults",
			zap.String("configPath", configPath),
			zap.Error(err))
		return
	}

	logger.Info("Config loaded", zap.String("path", configPath))
}

// runSelfCheck probes every external dependency and prints the outcome.
func runSelfCheck() []string {
	fmt.Println("🔍 Running self-check...")

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		return []string{"logger"}
	}
	defer logger.Sync()

	serviceChecks := []struct {
		name string
		fn   func() error
	}{
		{"FFmpeg", func() error { return checkFFmpeg(logger) }},
		{"Speech engine", func() error { return checkSpeechEngine(logger) }},
		{"MuseTalk", func() error { return checkMuseTalk(logger) }},
		{"ARTalk", func() error { return checkARTalk(logger) }},
		{"Portrait API", func() error { return checkPortraitAPI(logger) }},
		{"Diffusion server", func() error { return checkDiffusion(logger) }},
		{"Verse writer", func() error { return checkVerseWriter(logger) }},
		{"Database", checkDatabase},
	}

	var unavailableServices []string
	for _, check := range serviceChecks {
		fmt.Printf("  📋 Checking %s...", check.name)
		if err := check.fn(); err != nil {
			fmt.Printf(" ❌ (%v)\n", err)
			unavailableServices = append(unavailableServices, check.name)
		} else {
			fmt.Printf(" ✅\n")
		}
	}

	if len(unavailableServices) > 0 {
		fmt.Printf("⚠️  Unavailable services: %v\n", unavailableServices)
	} else {
		fmt.Println("✅ All services available")
	}

	return unavailableServices
}

func checkFFmpeg(logger *zap.Logger) error {
	media := ffmpeg.NewProcessor(logger)
	if !media.Available() {
		return fmt.Errorf("%s not on PATH", media.Binary())
	}
	return nil
}

func checkSpeechEngine(logger *zap.Logger) error {
	engine := tts.NewDefaultEngine(logger)
	if !engine.Available() {
		return fmt.Errorf("%s unavailable", engine.Name())
	}
	return nil
}

func checkMuseTalk(logger *zap.Logger) error {
	return probeError(musetalk.NewDriver(logger).Probe())
}

func checkARTalk(logger *zap.Logger) error {
	return probeError(artalk.NewDriver(logger).Probe())
}

func checkPortraitAPI(logger *zap.Logger) error {
	if !dalle.NewClient(logger).Available() {
		return fmt.Errorf("OPENAI_API_KEY not set")
	}
	return nil
}

func checkDiffusion(logger *zap.Logger) error {
	client := drawthings.NewClient(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !client.Available(ctx) {
		return fmt.Errorf("no diffusion server at %s", client.BaseURL)
	}
	return nil
}

func checkVerseWriter(logger *zap.Logger) error {
	writer := verse.NewWriter(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !writer.Available(ctx) {
		return fmt.Errorf("no Ollama at %s", writer.BaseURL)
	}
	return nil
}

func checkDatabase() error {
	return database.InitDatabase()
}

// probeError folds a probe report into one error naming the failed checks.
func probeError(report capability.Report) error {
	if report.Available {
		return nil
	}

	names := make([]string, 0, len(report.Failures))
	for name := range report.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	return fmt.Errorf("missing: %s", strings.Join(names, ", "))
}
