// The avatargen command drives a lip-sync adapter from the shell:
// initialize the capability probe, prepare an avatar, generate a video,
// print status, clean up storage. Action flags combine, so one invocation
// can prepare a subject and generate for it. With --json the command prints
// exactly one JSON object covering every action it ran.
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

	"github.com/m3ntallyilll/rrfff/pkg/capability"
	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/tools/ffmpeg"
	"github.com/m3ntallyilll/rrfff/pkg/tools/musetalk"
)

func main() {
	initialize := flag.Bool("initialize", false, "Probe the toolkit and report the selected mode")
	status := flag.Bool("status", false, "Print adapter status")
	prepare := flag.String("prepare", "", "Character id to prepare (requires --image)")
	image := flag.String("image", "", "Source portrait for --prepare")
	generate := flag.String("generate", "", "Character id to generate for (requires --audio and --output)")
	audio := flag.String("audio", "", "Driving audio for --generate")
	output := flag.String("output", "", "Output video path for --generate")
	bboxShift := flag.Int("bbox-shift", 0, "MuseTalk bbox_shift tuning value")
	useAnimator := flag.Bool("animator", false, "Drive the ARTalk head animator instead of MuseTalk")
	jsonOut := flag.Bool("json", false, "Print one JSON object instead of plain lines")
	cleanup := flag.Bool("cleanup", false, "Remove adapter-managed storage before exiting")
	flag.Parse()

	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	loadConfig(logger)

	adapter := buildAdapter(logger, *useAnimator, *bboxShift)

	results := make(map[string]interface{})
	ran := false
	failed := false

	if *initialize {
		ran = true
		mode := adapter.Initialize()
		results["initialize"] = map[string]capability.Mode{"mode": mode}
		if !*jsonOut {
			fmt.Printf("Initialization: %s mode\n", mode)
		}
	}

	if *prepare != "" {
		ran = true
		if *image == "" {
			log.Fatal("--prepare requires --image")
		}

		subject, err := adapter.Prepare(*prepare, *image)
		if err != nil {
			failed = true
			results["prepare"] = map[string]string{"error": err.Error()}
			if !*jsonOut {
				fmt.Println("Avatar preparation: FAILED")
				fmt.Printf("Error: %v\n", err)
			}
		} else {
			results["prepare"] = subject
			if !*jsonOut {
				fmt.Println("Avatar preparation: SUCCESS")
				fmt.Printf("Stored: %s\n", subject.StoredPath)
			}
		}
	}

	if *generate != "" {
		ran = true
		if *audio == "" || *output == "" {
			log.Fatal("--generate requires --audio and --output")
		}

		result := adapter.Generate(context.Background(), *generate, capability.GenerationInput{
			AudioPath:  *audio,
			OutputPath: *output,
		})
		results["generate"] = result

		if !*jsonOut {
			if result.Success {
				fmt.Println("Video generation: SUCCESS")
				fmt.Printf("Output: %s\n", result.OutputPath)
				fmt.Printf("Mode: %s\n", result.Mode)
				if result.FallbackReason != capability.FallbackNone {
					fmt.Printf("Fallback: %s\n", result.FallbackReason)
				}
			} else {
				fmt.Println("Video generation: FAILED")
				fmt.Printf("Error: %s\n", result.Diagnostic)
			}
		}
		if !result.Success {
			failed = true
		}
	}

	if *status {
		ran = true
		results["status"] = adapter.Status()
		if !*jsonOut {
			printJSON(adapter.Status())
		}
	}

	if *cleanup {
		ran = true
		if err := adapter.Cleanup(); err != nil {
			failed = true
			results["cleanup"] = map[string]string{"error": err.Error()}
			if !*jsonOut {
				fmt.Printf("Cleanup: FAILED (%v)\n", err)
			}
		} else {
			results["cleanup"] = map[string]string{"status": "ok"}
			if !*jsonOut {
				fmt.Println("Cleanup: SUCCESS")
			}
		}
	}

	if !ran {
		flag.Usage()
		os.Exit(1)
	}

	if *jsonOut {
		printJSON(results)
	}
	if failed {
		os.Exit(1)
	}
}

func buildAdapter(logger *zap.Logger, useAnimator bool, bboxShift int) *capability.Adapter {
	if useAnimator {
		adapter, _ := artalk.NewAdapter(logger)
		return adapter
	}

	adapter, driver := musetalk.NewAdapter(logger, ffmpeg.NewProcessor(logger))
	if bboxShift != 0 {
		driver.SetBBoxShift(bboxShift)
	}
	return adapter
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Cannot encode result: %v", err)
	}
	fmt.Println(string(data))
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
