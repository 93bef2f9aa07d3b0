package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormManager wraps the gorm handle and the battle pipeline queries.
type GormManager struct {
	DB *gorm.DB
}

// NewGormManager opens the database at the per-user app data path and
// runs migrations.
func NewGormManager() (*GormManager, error) {
	dbPath, err := GetDatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %v", err)
	}
	return NewGormManagerAt(dbPath)
}

// NewGormManagerAt opens the database at an explicit path. Used by the
// tests and by callers that keep the database next to their output.
func NewGormManagerAt(dbPath string) (*GormManager, error) {
	newLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := fmt.Sprintf("%s?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %v", err)
	}

	manager := &GormManager{DB: db}

	if err := manager.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	return manager, nil
}

// Migrate creates or updates the schema.
func (gm *GormManager) Migrate() error {
	return gm.DB.AutoMigrate(&Battle{}, &Round{}, &GeneratedAsset{})
}

// Close closes the underlying connection.
func (gm *GormManager) Close() error {
	sqlDB, err := gm.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB exposes the gorm handle.
func (gm *GormManager) GetDB() *gorm.DB {
	return gm.DB
}

// CreateBattle registers a new battle.
func (gm *GormManager) CreateBattle(name, description, scriptFile, outputDir string) (*Battle, error) {
	battle := &Battle{
		Name:        name,
		Description: description,
		ScriptFile:  scriptFile,
		OutputDir:   outputDir,
		Status:      StatusPending,
	}

	result := gm.DB.Create(battle)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create battle: %v", result.Error)
	}

	return battle, nil
}

// GetBattleByName loads a battle with its rounds and assets. A missing
// record returns (nil, nil).
func (gm *GormManager) GetBattleByName(name string) (*Battle, error) {
	var battle Battle
	result := gm.DB.Preload("Rounds.Assets").First(&battle, "name = ?", name)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get battle: %v", result.Error)
	}

	return &battle, nil
}

// GetBattleByID loads a battle with its rounds and assets. A missing
// record returns (nil, nil).
func (gm *GormManager) GetBattleByID(id uint) (*Battle, error) {
	var battle Battle
	result := gm.DB.Preload("Rounds.Assets").First(&battle, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get battle: %v", result.Error)
	}

	return &battle, nil
}

// ListBattles returns every battle, newest first, with rounds loaded.
func (gm *GormManager) ListBattles() ([]Battle, error) {
	var battles []Battle
	result := gm.DB.Preload("Rounds").Order("created_at desc").Find(&battles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list battles: %v", result.Error)
	}

	return battles, nil
}

// UpdateBattleStatus writes the battle status and error text.
func (gm *GormManager) UpdateBattleStatus(id uint, status ProcessStatus, errorMsg string) error {
	battle := &Battle{BaseModel: BaseModel{ID: id}}
	result := gm.DB.Model(battle).Updates(map[string]interface{}{
		"status":     status,
		"error_msg":  errorMsg,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update battle status: %v", result.Error)
	}

	return nil
}

// UpdateBattleProgress bumps the processed-round counter.
func (gm *GormManager) UpdateBattleProgress(id uint, processedRounds int) error {
	battle := &Battle{BaseModel: BaseModel{ID: id}}
	result := gm.DB.Model(battle).Updates(map[string]interface{}{
		"processed_rounds": processedRounds,
		"updated_at":       time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update battle progress: %v", result.Error)
	}

	return nil
}

// UpdateBattle saves the full battle record.
func (gm *GormManager) UpdateBattle(battle *Battle) error {
	result := gm.DB.Save(battle)
	if result.Error != nil {
		return fmt.Errorf("failed to update battle: %v", result.Error)
	}

	return nil
}

// CreateRound registers one character turn.
func (gm *GormManager) CreateRound(round *Round) error {
	result := gm.DB.Create(round)
	if result.Error != nil {
		return fmt.Errorf("failed to create round: %v", result.Error)
	}

	return nil
}

// GetRoundByID loads one round with its assets. A missing record
// returns (nil, nil).
func (gm *GormManager) GetRoundByID(id uint) (*Round, error) {
	var round Round
	result := gm.DB.Preload("Assets").First(&round, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get round: %v", result.Error)
	}

	return &round, nil
}

// GetRoundByTurn looks a round up by battle, round number and
// character. A missing record returns (nil, nil).
func (gm *GormManager) GetRoundByTurn(battleID uint, number int, character string) (*Round, error) {
	var round Round
	result := gm.DB.Preload("Assets").
		Where("battle_id = ? AND number = ? AND character = ?", battleID, number, character).
		First(&round)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get round: %v", result.Error)
	}

	return &round, nil
}

// GetRoundsByBattleID returns a battle's rounds in performance order.
func (gm *GormManager) GetRoundsByBattleID(battleID uint) ([]Round, error) {
	var rounds []Round
	result := gm.DB.Preload("Assets").
		Where("battle_id = ?", battleID).
		Order("number, id").
		Find(&rounds)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get rounds by battle: %v", result.Error)
	}

	return rounds, nil
}

// UpdateRound saves the full round record.
func (gm *GormManager) UpdateRound(round *Round) error {
	result := gm.DB.Save(round)
	if result.Error != nil {
		return fmt.Errorf("failed to update round: %v", result.Error)
	}

	return nil
}

// UpdateRoundStatus writes the round status and error text.
func (gm *GormManager) UpdateRoundStatus(id uint, status ProcessStatus, errorMsg string) error {
	round := &Round{BaseModel: BaseModel{ID: id}}
	result := gm.DB.Model(round).Updates(map[string]interface{}{
		"status":     status,
		"error_msg":  errorMsg,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update round status: %v", result.Error)
	}

	return nil
}

// UpdateRoundProgress flags which artifacts a round has so far.
func (gm *GormManager) UpdateRoundProgress(id uint, audioGenerated, videoGenerated bool) error {
	round := &Round{BaseModel: BaseModel{ID: id}}
	result := gm.DB.Model(round).Updates(map[string]interface{}{
		"audio_generated": audioGenerated,
		"video_generated": videoGenerated,
		"updated_at":      time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update round progress: %v", result.Error)
	}

	return nil
}

// RetryRound resets a failed round to pending and reopens its battle,
// both in one transaction.
func (gm *GormManager) RetryRound(id uint) error {
	var round Round
	if err := gm.DB.First(&round, id).Error; err != nil {
		return fmt.Errorf("failed to get round: %v", err)
	}

	tx := gm.DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(&Round{BaseModel: BaseModel{ID: id}}).Updates(map[string]interface{}{
		"status":     StatusPending,
		"error_msg":  "",
		"updated_at": time.Now(),
	}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to reset round status: %v", err)
	}

	if err := tx.Model(&Battle{BaseModel: BaseModel{ID: round.BattleID}}).Updates(map[string]interface{}{
		"status":     StatusPending,
		"error_msg":  "",
		"updated_at": time.Now(),
	}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to reopen battle: %v", err)
	}

	return tx.Commit().Error
}

// CreateAsset records one generated artifact.
func (gm *GormManager) CreateAsset(asset *GeneratedAsset) error {
	result := gm.DB.Create(asset)
	if result.Error != nil {
		return fmt.Errorf("failed to create asset: %v", result.Error)
	}

	return nil
}

// GetAssetsByRoundID returns a round's artifacts.
func (gm *GormManager) GetAssetsByRoundID(roundID uint) ([]GeneratedAsset, error) {
	var assets []GeneratedAsset
	result := gm.DB.Where("round_id = ?", roundID).Find(&assets)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get assets by round: %v", result.Error)
	}

	return assets, nil
}
