// The check_progress command prints the processing state of recorded
// battles. With no arguments it lists every battle; with a battle name it
// prints per-round detail including generated assets.
package main

import (
	"fmt"
	"os"

	"github.com/m3ntallyilll/rrfff/pkg/database"
)

func main() {
	db, err := database.NewGormManager()
	if err != nil {
		fmt.Printf("Cannot open battle database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) > 1 {
		if err := printBattleDetail(db, os.Args[1]); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return
	}

	if err := printBattleList(db); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func printBattleList(db *database.GormManager) error {
	battles, err := db.ListBattles()
	if err != nil {
		return fmt.Errorf("cannot list battles: %w", err)
	}
	if len(battles) == 0 {
		fmt.Println("No battles recorded yet.")
		return nil
	}

	fmt.Printf("Recorded battles: %d\n", len(battles))
	for _, battle := range battles {
		fmt.Printf("%s %-24s %-10s %d/%d turns",
			statusGlyph(battle.Status), battle.Name, battle.Status,
			battle.ProcessedRounds, battle.TotalRounds)
		if battle.ErrorMsg != "" {
			fmt.Printf("  (%s)", battle.ErrorMsg)
		}
		fmt.Println()
	}

	return nil
}

func printBattleDetail(db *database.GormManager, name string) error {
	battle, err := db.GetBattleByName(name)
	if err != nil {
		return fmt.Errorf("cannot load battle: %w", err)
	}
	if battle == nil {
		return fmt.Errorf("no battle named %q", name)
	}

	fmt.Printf("Battle %s (%s)\n", battle.Name, battle.Status)
	fmt.Printf("- Script: %s\n", battle.ScriptFile)
	fmt.Printf("- Output: %s\n", battle.OutputDir)
	fmt.Printf("- Progress: %d/%d turns\n", battle.ProcessedRounds, battle.TotalRounds)
	if battle.ErrorMsg != "" {
		fmt.Printf("- Note: %s\n", battle.ErrorMsg)
	}

	rounds, err := db.GetRoundsByBattleID(battle.ID)
	if err != nil {
		return fmt.Errorf("cannot load rounds: %w", err)
	}

	for _, round := range rounds {
		fmt.Printf("%s Round %d, %s: %s",
			statusGlyph(round.Status), round.Number, round.Character, round.Status)
		if round.ErrorMsg != "" {
			fmt.Printf(" (%s)", round.ErrorMsg)
		}
		fmt.Println()

		assets, err := db.GetAssetsByRoundID(round.ID)
		if err != nil {
			continue
		}
		for _, asset := range assets {
			fmt.Printf("    - %s: %s (%.2f KB)\n",
				asset.Kind, asset.Path, float64(asset.SizeBytes)/1024)
		}
	}

	return nil
}

func statusGlyph(status database.ProcessStatus) string {
	switch status {
	case database.StatusCompleted:
		return "✅"
	case database.StatusFailed:
		return "❌"
	case database.StatusSkipped:
		return "⏭️"
	case database.StatusProcessing:
		return "🔄"
	default:
		return "⏳"
	}
}
