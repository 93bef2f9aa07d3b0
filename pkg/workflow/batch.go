package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ProcessDirectory runs every battle script in dir through ProcessBattle,
// in filename order. Scripts are .txt files; everything else is ignored.
// A failed script is reported in its result and does not stop the batch.
func (p *Processor) ProcessDirectory(ctx context.Context, dir, outputDir string) ([]*BattleResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read script dir: %w", err)
	}

	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
			continue
		}
		scripts = append(scripts, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(scripts)
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no .txt scripts in %s", dir)
	}

	p.logger.Info("Batch started", zap.String("dir", dir), zap.Int("scripts", len(scripts)))

	var results []*BattleResult
	for _, path := range scripts {
		result, err := p.ProcessBattle(ctx, BattleParams{ScriptPath: path, OutputDir: outputDir})
		if err != nil {
			p.logger.Warn("Battle script failed", zap.String("script", path), zap.Error(err))
			base := filepath.Base(path)
			results = append(results, &BattleResult{
				Name:   strings.TrimSuffix(base, filepath.Ext(base)),
				Status: "failed",
			})
			continue
		}
		results = append(results, result)
	}
	return results, nil
}
