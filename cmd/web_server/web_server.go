// The web_server command runs the battle dashboard on its own, without the
// MCP stdio transport. Logs are mirrored to connected dashboard clients
// through the broadcast hub.
package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/internal/web"
	"github.com/m3ntallyilll/rrfff/pkg/broadcast"
	"github.com/m3ntallyilll/rrfff/pkg/database"
	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

func main() {
	_ = godotenv.Load()

	hub := broadcast.NewBroadcastService()
	broadcast.GlobalBroadcastService = hub

	var wg sync.WaitGroup
	wg.Add(1)
	go hub.Start(&wg)

	// Dashboard clients see server logs live; stdout keeps a console copy.
	logger := web.BroadcastLogger("web_server", hub)
	defer logger.Sync()

	loadConfig(logger)

	db, err := database.NewGormManager()
	if err != nil {
		logger.Warn("Battle persistence disabled", zap.Error(err))
		db = nil
	}

	processor := workflow.NewProcessor(logger, db)
	animator, _ := artalk.NewAdapter(logger)
	processor.SetAnimator(animator)

	server := web.NewServer(logger, processor, db, hub)
	if err := server.Run(); err != nil {
		logger.Fatal("Web server failed", zap.Error(err))
	}
}

// loadConfig reads config.yaml from the working directory, falling back to
// the executable's directory. Consumers carry viper defaults, so a missing
// file only means defaults apply.
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
