// The self_check command probes every external dependency the pipeline can
// use and exits non-zero when any is missing. Run it before a battle to see
// which generation paths will be real and which simulated.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/dalle"
	"github.com/m3ntallyilll/rrfff/pkg/tools/drawthings"
	"github.com/m3ntallyilll/rrfff/pkg/tools/ffmpeg"
	"github.com/m3ntallyilll/rrfff/pkg/tools/musetalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
	"github.com/m3ntallyilll/rrfff/pkg/tools/verse"
)

func main() {
	fmt.Println("🔍 Running pipeline self-check...")

	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("❌ Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	loadConfig(logger)

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

	allPassed := true
	for _, check := range serviceChecks {
		fmt.Printf("  📋 Checking %s...", check.name)
		if err := check.fn(); err != nil {
			fmt.Printf(" ❌ (%v)\n", err)
			allPassed = false
		} else {
			fmt.Printf(" ✅\n")
		}
	}

	if !allPassed {
		fmt.Println("❌ Self-check failed; missing services run in simulation mode")
		os.Exit(1)
	}

	fmt.Println("✅ All services available, full-quality generation is possible")
}

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
	}
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
