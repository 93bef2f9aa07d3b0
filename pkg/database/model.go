package database

import (
	"gorm.io/gorm"
)

// BaseModel carries the shared columns.
type BaseModel struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt MyTime         `json:"created_at"`
	UpdatedAt MyTime         `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Battle is one processed battle script.
type Battle struct {
	BaseModel
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	ScriptFile      string        `json:"script_file,omitempty"`
	OutputDir       string        `json:"output_dir"`
	Status          ProcessStatus `json:"status" gorm:"default:pending"`
	ErrorMsg        string        `json:"error_msg,omitempty"`
	TotalRounds     int           `json:"total_rounds"`
	ProcessedRounds int           `json:"processed_rounds"`
	Rounds          []Round       `json:"rounds" gorm:"foreignKey:BattleID"`
}

// Round is one character's turn within a numbered round. A battle
// round with two performers stores two Round rows sharing a Number.
type Round struct {
	BaseModel
	BattleID       uint             `json:"battle_id"`
	Battle         Battle           `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Number         int              `json:"number"`
	Character      string           `json:"character"`
	VerseText      string           `json:"verse_text"`
	Status         ProcessStatus    `json:"status" gorm:"default:pending"`
	ErrorMsg       string           `json:"error_msg,omitempty"`
	AudioGenerated bool             `json:"audio_generated" gorm:"default:false"`
	VideoGenerated bool             `json:"video_generated" gorm:"default:false"`
	StartTime      MyTime           `json:"start_time,omitempty"`
	EndTime        MyTime           `json:"end_time,omitempty"`
	Duration       int64            `json:"duration"`
	Assets         []GeneratedAsset `json:"assets" gorm:"foreignKey:RoundID"`
}

// Asset kinds stored in GeneratedAsset.Kind.
const (
	AssetAudio      = "audio"
	AssetVideo      = "video"
	AssetDescriptor = "descriptor"
	AssetPortrait   = "portrait"
)

// GeneratedAsset is one artifact produced for a round: the verse audio,
// the lip-sync video or its simulation descriptor, or a portrait.
type GeneratedAsset struct {
	BaseModel
	RoundID   uint    `json:"round_id"`
	Round     Round   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Kind      string  `json:"kind"`
	Path      string  `json:"path"`
	Mode      string  `json:"mode,omitempty"`
	SizeBytes int64   `json:"size_bytes"`
	Duration  float64 `json:"duration,omitempty"`
}
