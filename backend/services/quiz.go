package services

import (
	"errors"
	"math"

	"gorm.io/gorm"

	"coursegate/backend/apperrors"
	"coursegate/backend/models"
)

type QuizService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	Payments    *PaymentService
}

func NewQuizService(db *gorm.DB, progression *ProgressionService, payments *PaymentService) *QuizService {
	return &QuizService{DB: db, Progression: progression, Payments: payments}
}

type QuizAnswer struct {
	QuestionID     uint `json:"question_id"`
	SelectedAnswer *int `json:"selected_answer"`
}

type QuestionResult struct {
	QuestionID uint `json:"question_id"`
	Selected   *int `json:"selected,omitempty"`
	Correct    bool `json:"correct"`
}

type QuizSubmission struct {
	Score             int              `json:"score"`
	Passed            bool             `json:"passed"`
	AttemptsUsed      int              `json:"attempts_used"`
	AttemptsRemaining int              `json:"attempts_remaining"`
	Results           []QuestionResult `json:"results"`
	Progress          *models.Progress `json:"progress"`
}

// Submit scores a quiz attempt and, when warranted, advances the unlock
// frontier. The attempt counter moves on every scored attempt, but a learner
// already at the cap is rejected before scoring and the counter stays put.
func (s *QuizService) Submit(user *models.User, quizID uint, answers []QuizAnswer) (*QuizSubmission, error) {
	var quiz models.Quiz
	if err := s.DB.Preload("Questions").First(&quiz, quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("quiz not found")
		}
		return nil, err
	}

	var level models.Level
	if err := s.DB.First(&level, quiz.LevelID).Error; err != nil {
		return nil, apperrors.NotFound("quiz level not found")
	}
	var course models.Course
	if err := s.DB.First(&course, level.CourseID).Error; err != nil {
		return nil, apperrors.NotFound("course not found")
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return nil, apperrors.NotFound("quiz not found")
	}

	status, _, err := s.Payments.LatestStatus(s.DB, user.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if !HasAccess(user.Role, course.Price, status) {
		return nil, apperrors.Forbidden("no access to this course")
	}

	if len(quiz.Questions) == 0 {
		return nil, apperrors.Validation("quiz has no questions")
	}

	selected := make(map[uint]*int, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.SelectedAnswer
	}

	var submission QuizSubmission
	var progressID uint
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		progress, err := s.Progression.ensureProgressLockedTx(tx, user.ID, course.ID)
		if err != nil {
			return err
		}
		if !user.IsAdmin() && level.LevelNumber > progress.CurrentLevel {
			return apperrors.SequenceViolation("level is locked, finish earlier levels first")
		}

		lp, err := s.Progression.levelProgressTx(tx, progress, &level)
		if err != nil {
			return err
		}

		if !user.IsAdmin() && lp.QuizAttempts >= quiz.MaxAttempts {
			return apperrors.MaxAttemptsExceeded("maximum quiz attempts reached")
		}

		correct := 0
		results := make([]QuestionResult, 0, len(quiz.Questions))
		for _, q := range quiz.Questions {
			sel := selected[q.ID]
			ok := false
			if sel != nil && *sel >= 0 && *sel < len(q.OptionList()) && *sel == q.CorrectAnswer {
				ok = true
				correct++
			}
			results = append(results, QuestionResult{QuestionID: q.ID, Selected: sel, Correct: ok})
		}

		score := int(math.Round(100 * float64(correct) / float64(len(quiz.Questions))))
		passed := score >= quiz.PassingScore

		lp.QuizAttempts++
		lp.QuizScore = score
		if passed {
			lp.QuizPassed = true
		}

		// Completion only follows when the pass meets an already satisfied
		// watch threshold; finishLevelTx enforces that.
		if err := s.Progression.finishLevelTx(tx, progress, lp, &level, &course); err != nil {
			return err
		}

		remaining := quiz.MaxAttempts - lp.QuizAttempts
		if remaining < 0 {
			remaining = 0
		}
		submission = QuizSubmission{
			Score:             score,
			Passed:            passed,
			AttemptsUsed:      lp.QuizAttempts,
			AttemptsRemaining: remaining,
			Results:           results,
		}
		progressID = progress.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var progress models.Progress
	if err := s.DB.Preload("Levels").First(&progress, progressID).Error; err != nil {
		return nil, err
	}
	submission.Progress = &progress
	return &submission, nil
}

// QuestionsForLearner returns the quiz for a level without the answer key.
// The same gatekeeping as streaming applies: entitled learners only, and the
// level must already be unlocked.
func (s *QuizService) QuestionsForLearner(user *models.User, levelID uint) (*models.Quiz, error) {
	var level models.Level
	if err := s.DB.First(&level, levelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("level not found")
		}
		return nil, err
	}
	var course models.Course
	if err := s.DB.First(&course, level.CourseID).Error; err != nil {
		return nil, apperrors.NotFound("course not found")
	}
	if !course.IsPublished() && !user.IsAdmin() {
		return nil, apperrors.NotFound("level not found")
	}

	status, _, err := s.Payments.LatestStatus(s.DB, user.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if !HasAccess(user.Role, course.Price, status) {
		return nil, apperrors.Forbidden("no access to this course")
	}

	if !user.IsAdmin() {
		progress, err := s.Progression.Get(user.ID, course.ID)
		if err != nil {
			return nil, err
		}
		current := 1
		if progress != nil {
			current = progress.CurrentLevel
		}
		if level.LevelNumber > current {
			return nil, apperrors.SequenceViolation("level is locked, finish earlier levels first")
		}
	}

	var quiz models.Quiz
	if err := s.DB.Preload("Questions").Where("level_id = ?", level.ID).First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no quiz for this level")
		}
		return nil, err
	}
	return &quiz, nil
}
