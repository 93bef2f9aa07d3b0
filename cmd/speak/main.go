// The speak command synthesizes one line of text to a wav file:
//
//	speak [flags] TEXT [OUTPUT]
//
// Plain output follows the synthesis script contract (SUCCESS, File, Size,
// Duration, Sample rate lines); --json prints the result object instead.
// Exit code 0 on success, 1 on failure.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/tools/tts"
)

func main() {
	voice := flag.String("voice", tts.DefaultVoicePreset, "Bark voice preset")
	temp := flag.Float64("temp", tts.DefaultTemperature, "Sampling temperature")
	jsonOut := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: speak [flags] TEXT [OUTPUT]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	text := flag.Arg(0)
	outputPath := flag.Arg(1)

	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	processor := tts.NewProcessor(logger, tts.NewDefaultEngine(logger))

	if !*jsonOut {
		fmt.Printf("Generating audio with voice: %s\n", *voice)
		fmt.Printf("Text: %s\n", truncate(text, 50))
		fmt.Printf("Temperature: %.2f\n", *temp)
	}

	result, err := processor.Generate(context.Background(), tts.Request{
		Text:        text,
		VoicePreset: *voice,
		Temperature: *temp,
		OutputPath:  outputPath,
	})
	if err != nil {
		result = &tts.Result{Success: false, Error: err.Error()}
	}

	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Cannot encode result: %v", err)
		}
		fmt.Println(string(data))
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	if !result.Success {
		fmt.Printf("ERROR: %s\n", result.Error)
		os.Exit(1)
	}

	fmt.Println("SUCCESS")
	fmt.Printf("File: %s\n", result.OutputFile)
	fmt.Printf("Size: %d bytes\n", result.SizeBytes)
	fmt.Printf("Duration: %.2f seconds\n", result.Duration)
	fmt.Printf("Sample rate: %d Hz\n", result.SampleRate)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
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
