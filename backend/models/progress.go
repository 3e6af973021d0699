package models

import (
	"time"

	"gorm.io/gorm"
)

// Progress tracks one learner through one course. CurrentLevel is the unlock
// frontier: the lowest level number the learner has not finished yet. It never
// decreases.
type Progress struct {
	gorm.Model
	UserID          uint            `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"user_id"`
	CourseID        uint            `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"course_id"`
	CurrentLevel    int             `gorm:"not null;default:1" json:"current_level"`
	TotalProgress   int             `gorm:"not null;default:0" json:"total_progress"` // 0-100
	CourseCompleted bool            `gorm:"default:false" json:"course_completed"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	LastAccessedAt  *time.Time      `json:"last_accessed_at,omitempty"`
	Levels          []LevelProgress `json:"levels,omitempty"`
}

type LevelProgress struct {
	gorm.Model
	ProgressID          uint       `gorm:"not null;uniqueIndex:idx_level_progress_level" json:"-"`
	LevelID             uint       `gorm:"not null;uniqueIndex:idx_level_progress_level" json:"level_id"`
	LevelNumber         int        `gorm:"not null" json:"level_number"`
	VideoWatchedPercent int        `gorm:"not null;default:0" json:"video_watched_percent"` // 0-100
	QuizScore           int        `gorm:"not null;default:0" json:"quiz_score"`
	QuizPassed          bool       `gorm:"default:false" json:"quiz_passed"`
	QuizAttempts        int        `gorm:"not null;default:0" json:"quiz_attempts"`
	Completed           bool       `gorm:"default:false" json:"completed"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}
