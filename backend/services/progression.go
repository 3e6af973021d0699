package services

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coursegate/backend/apperrors"
	"coursegate/backend/models"
)

// VideoCompleteThreshold is the watched percentage at which a level's video
// counts as consumed.
const VideoCompleteThreshold = 90

type ProgressionService struct {
	DB *gorm.DB
}

func NewProgressionService(db *gorm.DB) *ProgressionService {
	return &ProgressionService{DB: db}
}

type LevelCompletionInput struct {
	VideoWatchedPercent int
	QuizScore           *int
	QuizPassed          *bool
}

// EnsureProgress returns the progress row for (user, course), creating it at
// level 1 on first touch. A concurrent create losing the unique-index race
// falls back to reading the winner's row.
func (s *ProgressionService) EnsureProgress(db *gorm.DB, userID, courseID uint) (*models.Progress, error) {
	var progress models.Progress
	err := db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&progress).Error
	if err == nil {
		return &progress, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	progress = models.Progress{
		UserID:       userID,
		CourseID:     courseID,
		CurrentLevel: 1,
	}
	if err := db.Create(&progress).Error; err != nil {
		if isDuplicateErr(err) {
			var existing models.Progress
			if err := db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}
	return &progress, nil
}

// ensureProgressLockedTx returns the progress row held under a row lock for
// the rest of tx. Completion writers read, mutate and save the whole row; the
// lock serializes them so a writer that read a stale frontier blocks until the
// newer one commits and then re-reads, instead of saving the stale value back.
// The sqlite driver ignores the locking clause, which is fine: its writers are
// serialized by the database itself.
func (s *ProgressionService) ensureProgressLockedTx(tx *gorm.DB, userID, courseID uint) (*models.Progress, error) {
	if _, err := s.EnsureProgress(tx, userID, courseID); err != nil {
		return nil, err
	}
	var progress models.Progress
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// Get returns the progress row with its per-level records, or nil when the
// learner has never touched the course.
func (s *ProgressionService) Get(userID, courseID uint) (*models.Progress, error) {
	var progress models.Progress
	err := s.DB.Preload("Levels").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// Touch stamps the last-access time. This is the only progress field the
// media gateway writes.
func (s *ProgressionService) Touch(userID, courseID uint) error {
	now := time.Now()
	return s.DB.Model(&models.Progress{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Update("last_accessed_at", now).Error
}

// RecordLevelProgress applies a watch/completion event to one level. Levels
// must be consumed in order: an event for a level past the unlock frontier
// fails and leaves every row untouched.
func (s *ProgressionService) RecordLevelProgress(userID uint, course *models.Course, level *models.Level, in LevelCompletionInput) (*models.Progress, error) {
	if in.VideoWatchedPercent < 0 || in.VideoWatchedPercent > 100 {
		return nil, apperrors.Validation("video_watched_percent must be between 0 and 100")
	}

	var progressID uint
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		progress, err := s.ensureProgressLockedTx(tx, userID, course.ID)
		if err != nil {
			return err
		}
		if level.LevelNumber > progress.CurrentLevel {
			return apperrors.SequenceViolation("level is locked, finish earlier levels first")
		}

		lp, err := s.levelProgressTx(tx, progress, level)
		if err != nil {
			return err
		}

		// Watched percent only ratchets upward.
		if in.VideoWatchedPercent > lp.VideoWatchedPercent {
			lp.VideoWatchedPercent = in.VideoWatchedPercent
		}
		if in.QuizScore != nil {
			lp.QuizScore = *in.QuizScore
		}
		if in.QuizPassed != nil && *in.QuizPassed {
			lp.QuizPassed = true
		}

		progressID = progress.ID
		return s.finishLevelTx(tx, progress, lp, level, course)
	})
	if err != nil {
		return nil, err
	}

	var result models.Progress
	if err := s.DB.Preload("Levels").First(&result, progressID).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// levelProgressTx reads the per-level record for update, creating it on first
// touch. Like the progress row, it is saved back whole, so the read locks it.
func (s *ProgressionService) levelProgressTx(tx *gorm.DB, progress *models.Progress, level *models.Level) (*models.LevelProgress, error) {
	var lp models.LevelProgress
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("progress_id = ? AND level_id = ?", progress.ID, level.ID).First(&lp).Error
	if err == nil {
		return &lp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lp = models.LevelProgress{
		ProgressID:  progress.ID,
		LevelID:     level.ID,
		LevelNumber: level.LevelNumber,
	}
	if err := tx.Create(&lp).Error; err != nil {
		if isDuplicateErr(err) {
			var existing models.LevelProgress
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("progress_id = ? AND level_id = ?", progress.ID, level.ID).First(&existing).Error; err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}
	return &lp, nil
}

// finishLevelTx evaluates completion for one level record, saves it, and
// advances the unlock frontier plus the derived course totals.
func (s *ProgressionService) finishLevelTx(tx *gorm.DB, progress *models.Progress, lp *models.LevelProgress, level *models.Level, course *models.Course) error {
	if !lp.Completed && levelSatisfied(level, lp) {
		now := time.Now()
		lp.Completed = true
		lp.CompletedAt = &now
	}
	if err := tx.Save(lp).Error; err != nil {
		return err
	}

	if lp.Completed && level.LevelNumber+1 > progress.CurrentLevel {
		progress.CurrentLevel = level.LevelNumber + 1
	}

	var completedCount int64
	if err := tx.Model(&models.LevelProgress{}).
		Where("progress_id = ? AND completed = ?", progress.ID, true).
		Count(&completedCount).Error; err != nil {
		return err
	}

	if course.LevelCount > 0 {
		progress.TotalProgress = int(math.Round(100 * float64(completedCount) / float64(course.LevelCount)))
	}

	if course.LevelCount > 0 && progress.CurrentLevel > course.LevelCount {
		progress.TotalProgress = 100
		progress.CourseCompleted = true
		if progress.CompletedAt == nil {
			now := time.Now()
			progress.CompletedAt = &now
		}
	}

	return tx.Save(progress).Error
}

func levelSatisfied(level *models.Level, lp *models.LevelProgress) bool {
	if level.QuizRequired {
		// Passing the quiz alone does not complete the level: the video
		// threshold must already be satisfied, and vice versa.
		return lp.QuizPassed && lp.VideoWatchedPercent >= VideoCompleteThreshold
	}
	return lp.VideoWatchedPercent >= VideoCompleteThreshold
}
