// The character_image command generates one character portrait:
//
//	character_image [flags] CHARACTER_NAME
//
// With OPENAI_API_KEY set it calls the image API; otherwise it renders a
// local placeholder so downstream avatar preparation always has a source.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

func main() {
	prompt := flag.String("prompt", "", "Portrait prompt (default describes the character on a neon stage)")
	outputDir := flag.String("output-dir", "output/portraits", "Directory for the portrait file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: character_image [flags] CHARACTER_NAME")
		flag.PrintDefaults()
		os.Exit(1)
	}
	name := flag.Arg(0)

	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	fmt.Printf("🎨 Generating portrait for %s...\n", name)

	processor := workflow.NewProcessor(logger, nil)
	path, placeholder, err := processor.GeneratePortrait(context.Background(), name, *prompt, *outputDir)
	if err != nil {
		fmt.Printf("💥 Portrait generation failed: %v\n", err)
		os.Exit(1)
	}

	if placeholder {
		fmt.Println("✅ Rendered placeholder portrait (image API unavailable)")
	} else {
		fmt.Println("🎉 Generated portrait via image API")
	}
	fmt.Printf("📁 Saved to: %s\n", path)
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
