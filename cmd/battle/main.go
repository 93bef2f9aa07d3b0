// The battle command runs the full pipeline for one battle script, or for
// every .txt script in a directory:
//
//	battle [flags] SCRIPT.txt
//	battle --dir [flags] SCRIPTS_DIR
//
// Exit code 0 when at least one turn completed, 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

func main() {
	dir := flag.Bool("dir", false, "Treat the argument as a directory of .txt scripts")
	output := flag.String("output", "output", "Output directory root")
	topic := flag.String("topic", "", "Battle topic passed to the verse writer")
	name := flag.String("name", "", "Battle name (default: script filename)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: battle [flags] SCRIPT.txt")
		flag.PrintDefaults()
		os.Exit(1)
	}

	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	db, err := database.NewGormManager()
	if err != nil {
		fmt.Printf("⚠️  Battle persistence disabled: %v\n", err)
		db = nil
	}
	defer func() {
		if db != nil {
			db.Close()
		}
	}()

	processor := workflow.NewProcessor(logger, db)
	animator, _ := artalk.NewAdapter(logger)
	processor.SetAnimator(animator)

	ctx := context.Background()

	if *dir {
		results, err := processor.ProcessDirectory(ctx, flag.Arg(0), *output)
		if err != nil {
			log.Fatalf("Batch processing failed: %v", err)
		}

		anyCompleted := false
		for _, result := range results {
			printBattleSummary(result)
			if result.Completed > 0 {
				anyCompleted = true
			}
		}
		if !anyCompleted {
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Processing battle script: %s\n", flag.Arg(0))

	result, err := processor.ProcessBattle(ctx, workflow.BattleParams{
		Name:       *name,
		ScriptPath: flag.Arg(0),
		OutputDir:  *output,
		Topic:      *topic,
	})
	if err != nil {
		log.Fatalf("Battle processing failed: %v", err)
	}

	printBattleSummary(result)
	if result.Status == "failed" {
		os.Exit(1)
	}
}

func printBattleSummary(result *workflow.BattleResult) {
	fmt.Printf("\nBattle %s: %s\n", result.Name, result.Status)
	if result.BattleDir != "" {
		fmt.Printf("- Output: %s\n", result.BattleDir)
	}
	if result.Mode != "" {
		fmt.Printf("- Lip-sync mode: %s\n", result.Mode)
	}
	if result.BattleVideo != "" {
		fmt.Printf("- Battle reel: %s\n", result.BattleVideo)
	}
	fmt.Printf("- Turns: %d completed, %d failed, %d skipped\n",
		result.Completed, result.Failed, result.Skipped)

	for _, turn := range result.Turns {
		fmt.Printf("  %s Round %d %s", turnGlyph(turn.Status), turn.Round, turn.Character)
		if turn.VideoFile != "" {
			fmt.Printf(" -> %s", turn.VideoFile)
		}
		if turn.Message != "" {
			fmt.Printf(" (%s)", turn.Message)
		}
		fmt.Println()
	}
}

func turnGlyph(status string) string {
	switch status {
	case "completed":
		return "✅"
	case "failed":
		return "❌"
	case "skipped":
		return "⏭️"
	default:
		return "⏳"
	}
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
