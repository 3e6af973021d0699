package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Quiz struct {
	gorm.Model
	LevelID      uint           `gorm:"not null;uniqueIndex" json:"level_id"`
	Title        string         `json:"title"`
	PassingScore int            `gorm:"not null;default:70" json:"passing_score"`
	MaxAttempts  int            `gorm:"not null;default:3" json:"max_attempts"`
	Questions    []QuizQuestion `json:"questions,omitempty"`
}

type QuizQuestion struct {
	gorm.Model
	QuizID        uint           `gorm:"not null" json:"quiz_id"`
	Question      string         `gorm:"not null" json:"question"`
	Options       datatypes.JSON `json:"options"` // JSON array of option strings
	CorrectAnswer int            `gorm:"not null" json:"-"`
	SequenceOrder int            `gorm:"not null;default:0" json:"sequence_order"`
}

// OptionList decodes the stored options array. A broken column yields an
// empty list, which scores every selection as incorrect.
func (q *QuizQuestion) OptionList() []string {
	var opts []string
	if len(q.Options) > 0 {
		_ = json.Unmarshal(q.Options, &opts)
	}
	return opts
}
